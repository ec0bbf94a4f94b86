// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func GetInfoCmd(ctx *Context) *cobra.Command {
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "show container info",
	}
	infoCmd.RunE = func(cmd *cobra.Command, args []string) error {
		sess, err := ctx.open(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			_ = sess.Close()
		}()
		info, err := sess.cont.Info()
		if err != nil {
			return err
		}
		cmd.Println("label:", info.Label)
		cmd.Println("uuid:", info.UUID.String())
		for i, root := range info.Roots {
			cmd.Println(fmt.Sprintf("root%d: %016x:%016x", i, root.Hi, root.Lo))
		}
		return nil
	}
	return infoCmd
}
