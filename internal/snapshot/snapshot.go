// Package snapshot holds the point-in-time view of a workbook and the pure
// diff that turns two views into an ordered list of change events.
package snapshot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"
)

// Sheet maps a cell address ("B7") to its text. Only non-empty cells are present.
type Sheet map[string]string

// Snapshot maps a sheet name to its cells.
//
// A nil Snapshot means "no baseline yet" and is never diffed against.
type Snapshot map[string]Sheet

// New returns an empty, non-nil snapshot.
func New() Snapshot {
	return Snapshot{}
}

// Set stores value at sheet/cell. Values that are empty after trimming
// whitespace are not stored, and remove any previous value.
func (s Snapshot) Set(sheet, cell, value string) {
	if strings.TrimSpace(value) == "" {
		if cells, ok := s[sheet]; ok {
			delete(cells, cell)
		}
		return
	}
	cells, ok := s[sheet]
	if !ok {
		cells = Sheet{}
		s[sheet] = cells
	}
	cells[cell] = value
}

// AddSheet registers a sheet even when it has no non-empty cells.
func (s Snapshot) AddSheet(sheet string) {
	if _, ok := s[sheet]; !ok {
		s[sheet] = Sheet{}
	}
}

// Get returns the text at sheet/cell.
func (s Snapshot) Get(sheet, cell string) (string, bool) {
	v, ok := s[sheet][cell]
	return v, ok
}

// SheetNames returns sheet names in ascending order.
func (s Snapshot) SheetNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CellCount is the total number of non-empty cells.
func (s Snapshot) CellCount() int {
	n := 0
	for _, cells := range s {
		n += len(cells)
	}
	return n
}

// Clone returns a deep copy. Cloning nil yields nil.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for name, cells := range s {
		c := make(Sheet, len(cells))
		for addr, v := range cells {
			c[addr] = v
		}
		out[name] = c
	}
	return out
}

// Equal reports whether both snapshots hold the same sheets and cells.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for name, cells := range s {
		oc, ok := other[name]
		if !ok || len(oc) != len(cells) {
			return false
		}
		for addr, v := range cells {
			if ov, ok := oc[addr]; !ok || ov != v {
				return false
			}
		}
	}
	return true
}

// Fingerprint is an xxh3-128 digest over the canonical ordering of the
// snapshot. Equal snapshots have equal fingerprints.
func Fingerprint(s Snapshot) string {
	if s == nil {
		return ""
	}
	h := xxh3.New()
	for _, name := range s.SheetNames() {
		cells := s[name]
		fmt.Fprintf(h, "S%d:%s\n", len(name), name)
		for _, addr := range sortedKeys(cells) {
			v := cells[addr]
			fmt.Fprintf(h, "C%d:%s=%d:%s\n", len(addr), addr, len(v), v)
		}
	}
	sum := h.Sum128().Bytes()
	return fmt.Sprintf("%x", sum[:])
}

func sortedKeys(cells Sheet) []string {
	keys := make([]string, 0, len(cells))
	for k := range cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
