// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/quarrystore/quarry-go/pkg/oid"
	"github.com/spf13/cobra"
)

func GetAllocCmd(ctx *Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "alloc",
		Short: "allocate object identifiers",
	}

	// allocate ids
	{
		idCmd := &cobra.Command{
			Use: "id",
		}
		count := idCmd.Flags().Int("count", 1, "number of identifiers to allocate")
		idCmd.RunE = func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = sess.Close()
			}()
			alloc, err := oid.NewAllocator(ctx.Logger.Named("oid"), sess.cont)
			if err != nil {
				return err
			}
			defer func() {
				_ = alloc.Close()
			}()
			for i := 0; i < *count; i++ {
				id, err := alloc.Allocate()
				if err != nil {
					return err
				}
				cmd.Println(fmt.Sprintf("%016x:%016x", id.Hi, id.Lo))
			}
			return nil
		}
		rootCmd.AddCommand(idCmd)
	}

	// show the persisted cursor
	{
		cursorCmd := &cobra.Command{
			Use: "cursor",
		}
		cursorCmd.RunE = func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = sess.Close()
			}()
			next, ok, err := oid.Cursor(sess.cont)
			if err != nil {
				return err
			}
			if !ok {
				cmd.Println("cursor not created yet")
				return nil
			}
			cmd.Println(fmt.Sprintf("%016x:%016x", next.Hi, next.Lo))
			return nil
		}
		rootCmd.AddCommand(cursorCmd)
	}

	return rootCmd
}
