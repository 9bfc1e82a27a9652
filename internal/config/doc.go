// SPDX-License-Identifier: MPL-2.0

// Package config loads nestnet's user configuration with Viper, using CUE as
// the file format.
//
// The file is $XDG_CONFIG_HOME/nestnet/config.cue (~/.config/nestnet on most
// systems) unless --config names another one. It is validated against the
// embedded config_schema.cue before being merged over the built-in defaults.
// NESTNET_* environment variables override both, with "." in a key replaced
// by "_" (NESTNET_CONTAINER_ENGINE=podman).
package config
