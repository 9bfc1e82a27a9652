// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/nestnet/nestnet/cmd/nestnet"

func main() {
	cmd.Execute()
}
