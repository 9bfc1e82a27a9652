// SPDX-License-Identifier: MPL-2.0

// Package issue turns failures into user-facing messages.
//
// ActionableError carries what was being attempted, the resource involved
// and hints for fixing it. The issue catalog holds longer Markdown guides
// for the failures users hit most, rendered with glamour by "nestnet
// explain" style helpers.
package issue
