// SPDX-License-Identifier: MPL-2.0

// Package session drives one nestnet run: it loads customization files,
// resolves the requested components, builds and starts the network, runs
// tests or the interactive front end and always stops the network again.
package session
