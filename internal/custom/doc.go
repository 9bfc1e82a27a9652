// SPDX-License-Identifier: MPL-2.0

// Package custom loads customization files passed with --custom.
//
// A customization file adds components to the registry, defines macro tests,
// installs a pre-flight validator and replaces the default component keys.
// CUE, JSON, YAML and TOML documents are all checked against the closed
// #Custom schema in custom_schema.cue, so a typo in a top-level name is an
// error instead of a silently ignored global. Compiled Go plugins (.so)
// register components through an exported Register function.
//
//	switches: {
//		slow: {base: "ovsk", params: {stp: true}}
//	}
//	topos: {
//		pair: {
//			hosts: {h1: {}, h2: {}}
//			switches: {s1: {}}
//			links: [{node1: "h1", node2: "s1"}, {node1: "h2", node2: "s1"}]
//		}
//	}
//	tests: smoke: ["pingall", "iperf,h1,h2"]
//	validate: {switch: !="user"}
package custom
