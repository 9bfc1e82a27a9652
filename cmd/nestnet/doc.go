// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the nestnet command line: the run command that
// builds, exercises and tears down an emulated network, and the clean,
// list, config and explain helpers around it.
package cmd
