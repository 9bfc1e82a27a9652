// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by nestnet tests: a controllable
// clock, file fixtures, and a limit on concurrent container operations.
package testutil
