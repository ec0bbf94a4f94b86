// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"github.com/quarrystore/quarry-go/pkg/object"
	"github.com/quarrystore/quarry-go/pkg/txn"
	"github.com/spf13/cobra"
)

// parseOID reads "hi:lo" in hex. Empty selects the container's second root
// object, the conventional scratch object for tooling.
func parseOID(sess *session, raw string) (engine.ObjectID, error) {
	if raw == "" {
		info, err := sess.cont.Info()
		if err != nil {
			return engine.ObjectID{}, err
		}
		return info.Roots[1], nil
	}
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return engine.ObjectID{}, errors.Errorf("malformed object id %q, expected hi:lo", raw)
	}
	hi, err := strconv.ParseUint(parts[0], 16, 64)
	if err != nil {
		return engine.ObjectID{}, errors.WithStack(err)
	}
	lo, err := strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return engine.ObjectID{}, errors.WithStack(err)
	}
	return engine.ObjectID{Hi: hi, Lo: lo}, nil
}

func GetObjectCmd(ctx *Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "object",
		Short: "read and write objects",
	}
	oidFlag := rootCmd.PersistentFlags().String("oid", "", "object id as hi:lo in hex, defaults to a container root")

	withObject := func(cmd *cobra.Command, readOnly bool, fn func(o *object.Object) error) error {
		sess, err := ctx.open(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			_ = sess.Close()
		}()
		id, err := parseOID(sess, *oidFlag)
		if err != nil {
			return err
		}
		o, err := object.Open(sess.cont, id, readOnly)
		if err != nil {
			return err
		}
		defer func() {
			_ = o.Close()
		}()
		return fn(o)
	}

	// put a single value
	{
		putCmd := &cobra.Command{
			Use:  "put <dkey> <akey> <value>",
			Args: cobra.ExactArgs(3),
		}
		insert := putCmd.Flags().Bool("insert", false, "fail if the key already exists")
		putCmd.RunE = func(cmd *cobra.Command, args []string) error {
			flags := engine.CondNone
			if *insert {
				flags = engine.CondInsert
			}
			return withObject(cmd, false, func(o *object.Object) error {
				return o.Update(txn.None(), flags, []byte(args[0]), []byte(args[1]), []byte(args[2]))
			})
		}
		rootCmd.AddCommand(putCmd)
	}

	// get a single value
	{
		getCmd := &cobra.Command{
			Use:  "get <dkey> <akey>",
			Args: cobra.ExactArgs(2),
		}
		getCmd.RunE = func(cmd *cobra.Command, args []string) error {
			return withObject(cmd, true, func(o *object.Object) error {
				data, err := o.Fetch(txn.None(), engine.CondFetch, []byte(args[0]), []byte(args[1]), 0)
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			})
		}
		rootCmd.AddCommand(getCmd)
	}

	// delete a dkey
	{
		delCmd := &cobra.Command{
			Use:  "del <dkey>",
			Args: cobra.ExactArgs(1),
		}
		delCmd.RunE = func(cmd *cobra.Command, args []string) error {
			return withObject(cmd, false, func(o *object.Object) error {
				return o.Punch(txn.None(), []byte(args[0]))
			})
		}
		rootCmd.AddCommand(delCmd)
	}

	// list dkeys
	{
		lsCmd := &cobra.Command{
			Use: "ls",
		}
		lsCmd.RunE = func(cmd *cobra.Command, args []string) error {
			return withObject(cmd, true, func(o *object.Object) error {
				kl := o.ListKeys()
				n := 0
				for !kl.Done() {
					keys, err := kl.Next()
					if err != nil {
						return err
					}
					for _, k := range keys {
						cmd.Println(string(k))
						n++
					}
				}
				cmd.Println(fmt.Sprintf("%d keys", n))
				return nil
			})
		}
		rootCmd.AddCommand(lsCmd)
	}

	return rootCmd
}
