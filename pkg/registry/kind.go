// SPDX-License-Identifier: MPL-2.0

package registry

import "fmt"

const (
	// KindTopology selects network topologies ("topos").
	KindTopology Kind = iota
	// KindSwitch selects switch implementations ("switches").
	KindSwitch
	// KindHost selects host implementations ("hosts").
	KindHost
	// KindController selects controller implementations ("controllers").
	KindController
	// KindLink selects link implementations ("links").
	KindLink

	kindCount = int(KindLink) + 1
)

// Kind identifies one of the component tables.
type Kind int

var (
	kindNames  = [kindCount]string{"topology", "switch", "host", "controller", "link"}
	tableNames = [kindCount]string{"topos", "switches", "hosts", "controllers", "links"}
)

// Kinds returns every kind in table order.
func Kinds() []Kind {
	return []Kind{KindTopology, KindSwitch, KindHost, KindController, KindLink}
}

// String returns the singular kind name.
func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Table returns the pluralized table name used in customization files.
func (k Kind) Table() string {
	if !k.valid() {
		return ""
	}
	return tableNames[k]
}

// KindForTable maps a pluralized table name back to its Kind.
func KindForTable(table string) (Kind, bool) {
	for i, name := range tableNames {
		if name == table {
			return Kind(i), true
		}
	}
	return 0, false
}

func (k Kind) valid() bool {
	return k >= 0 && int(k) < kindCount
}
