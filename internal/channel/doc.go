// SPDX-License-Identifier: MPL-2.0

// Package channel runs one interactive shell per emulated node behind a
// pseudo-terminal and synchronizes with it through a prompt frame.
//
// The shell prompt is forced to a status frame: a record separator byte,
// the exit status of the previous command and a sentinel byte (0x7f by
// default). A command is complete once the read buffer ends with such a
// frame, so output never has to be scanned for a human readable prompt.
//
// A Multiplexer maps the readable master descriptors of all channels of a
// run to their channels and waits on any number of them with a single
// poll call.
package channel
