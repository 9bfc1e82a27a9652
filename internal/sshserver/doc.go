// SPDX-License-Identifier: MPL-2.0

// Package sshserver serves the nestnet command line over SSH using the Wish
// library, so a running network can be driven from another terminal.
//
// Clients authenticate with a token passed as the SSH password; public keys
// are refused. A session without a command gets the interactive prompt, and
// a session with a command runs that one line and exits.
package sshserver
