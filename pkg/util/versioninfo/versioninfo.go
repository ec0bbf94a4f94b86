// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package versioninfo

// These variables will be overwritten by Makefile.
var (
	QuarryVersion   = "None"
	QuarryGitBranch = "None"
	QuarryGitHash   = "None"
	QuarryBuildTS   = "None"
)
