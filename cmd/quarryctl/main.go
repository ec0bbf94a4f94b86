// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/quarrystore/quarry-go/lib/cli"
	"github.com/quarrystore/quarry-go/lib/util/cmd"
	"github.com/quarrystore/quarry-go/pkg/util/versioninfo"
)

func main() {
	rootCmd := cli.GetRootCmd()
	rootCmd.Version = fmt.Sprintf("%s, commit %s", versioninfo.QuarryVersion, versioninfo.QuarryGitHash)
	rootCmd.Use = strings.Replace(rootCmd.Use, "quarryctl", os.Args[0], 1)
	cmd.RunRootCommand(rootCmd)
}
