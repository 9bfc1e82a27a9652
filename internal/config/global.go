// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride lets tests bypass $XDG_CONFIG_HOME.
var configDirOverride string

// Reset clears test overrides.
func Reset() {
	configDirOverride = ""
}

// SetConfigDirOverride points ConfigDir at dir.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}
