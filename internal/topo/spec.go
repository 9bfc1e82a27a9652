// SPDX-License-Identifier: MPL-2.0

package topo

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	// Spec is a literal topology description, as found in customization
	// files and YAML topology files.
	Spec struct {
		Hosts    map[string]map[string]any `yaml:"hosts" json:"hosts"`
		Switches map[string]map[string]any `yaml:"switches" json:"switches"`
		Links    []LinkSpec                `yaml:"links" json:"links"`
	}

	// LinkSpec connects two named nodes.
	LinkSpec struct {
		Node1  string         `yaml:"node1" json:"node1"`
		Node2  string         `yaml:"node2" json:"node2"`
		Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	}
)

// FromSpec builds a topology from a literal description. Nodes are added
// in natural name order so h2 precedes h10.
func FromSpec(s Spec) (*Topo, error) {
	t := New()
	for _, name := range naturalKeys(s.Switches) {
		if err := t.AddSwitch(name, s.Switches[name]); err != nil {
			return nil, err
		}
	}
	for _, name := range naturalKeys(s.Hosts) {
		if err := t.AddHost(name, s.Hosts[name]); err != nil {
			return nil, err
		}
	}
	for _, l := range s.Links {
		if err := t.AddLink(l.Node1, l.Node2, l.Params); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// LoadFile reads a YAML topology description.
func LoadFile(path string) (*Topo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology file: %w", err)
	}
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse topology file %s: %w", path, err)
	}
	t, err := FromSpec(s)
	if err != nil {
		return nil, fmt.Errorf("topology file %s: %w", path, err)
	}
	return t, nil
}

// ToSpec renders t back into a literal description.
func (t *Topo) ToSpec() Spec {
	s := Spec{Hosts: map[string]map[string]any{}, Switches: map[string]map[string]any{}}
	for _, n := range t.nodes {
		params := map[string]any(n.Params.Clone())
		if n.Kind == NodeHost {
			s.Hosts[n.Name] = params
		} else {
			s.Switches[n.Name] = params
		}
	}
	for _, l := range t.links {
		s.Links = append(s.Links, LinkSpec{Node1: l.A, Node2: l.B, Params: l.Params.Clone()})
	}
	return s
}

func naturalKeys(m map[string]map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, naturalCompare)
	return keys
}

// naturalCompare orders names by their alphabetic prefix and then by any
// trailing number.
func naturalCompare(a, b string) int {
	pa, na := splitNumber(a)
	pb, nb := splitNumber(b)
	if c := strings.Compare(pa, pb); c != 0 {
		return c
	}
	if na != nb {
		return na - nb
	}
	return strings.Compare(a, b)
}

func splitNumber(s string) (string, int) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil {
		return s, -1
	}
	return s[:i], n
}
