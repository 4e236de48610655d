package snapshot

import (
	"fmt"
	"sort"
)

// Kind tags a ChangeEvent.
type Kind string

const (
	SheetCreated Kind = "sheet_created"
	SheetRemoved Kind = "sheet_removed"
	CellCreated  Kind = "cell_created"
	CellDeleted  Kind = "cell_deleted"
	CellUpdated  Kind = "cell_updated"
)

// ChangeEvent is one observed difference between two snapshots.
// Cell, OldValue and NewValue are empty for sheet-level events.
type ChangeEvent struct {
	Kind     Kind   `json:"kind"`
	Resource string `json:"resource,omitempty"`
	Sheet    string `json:"sheet"`
	Cell     string `json:"cell,omitempty"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`
}

// IsSheetEvent reports whether the event concerns a whole sheet.
func (e ChangeEvent) IsSheetEvent() bool {
	return e.Kind == SheetCreated || e.Kind == SheetRemoved
}

func (e ChangeEvent) String() string {
	switch e.Kind {
	case SheetCreated:
		return fmt.Sprintf("Sheet created '%s'", e.Sheet)
	case SheetRemoved:
		return fmt.Sprintf("Sheet removed '%s'", e.Sheet)
	case CellCreated:
		return fmt.Sprintf("[%s] Cell created %s = '%s'", e.Sheet, e.Cell, e.NewValue)
	case CellDeleted:
		return fmt.Sprintf("[%s] Cell deleted %s (was '%s')", e.Sheet, e.Cell, e.OldValue)
	case CellUpdated:
		return fmt.Sprintf("[%s] Cell updated %s from '%s' to '%s'", e.Sheet, e.Cell, e.OldValue, e.NewValue)
	default:
		return fmt.Sprintf("[%s] %s %s", e.Sheet, e.Kind, e.Cell)
	}
}

// Diff compares old and cur and returns the ordered change events.
//
// Sheet-level events come first in ascending sheet name order. Cell events
// follow, for sheets present in both snapshots, grouped by ascending sheet
// name and ordered by ascending (lexicographic) cell address. Cells of a
// created or removed sheet produce no cell events.
//
// A nil old snapshot is the first observation of a resource: no events.
func Diff(old, cur Snapshot) []ChangeEvent {
	if old == nil {
		return nil
	}
	if cur == nil {
		cur = Snapshot{}
	}

	var events []ChangeEvent

	names := make(map[string]struct{}, len(old)+len(cur))
	for name := range old {
		names[name] = struct{}{}
	}
	for name := range cur {
		names[name] = struct{}{}
	}
	all := make([]string, 0, len(names))
	for name := range names {
		all = append(all, name)
	}
	sort.Strings(all)

	var shared []string
	for _, name := range all {
		_, inOld := old[name]
		_, inNew := cur[name]
		switch {
		case inOld && inNew:
			shared = append(shared, name)
		case inNew:
			events = append(events, ChangeEvent{Kind: SheetCreated, Sheet: name})
		default:
			events = append(events, ChangeEvent{Kind: SheetRemoved, Sheet: name})
		}
	}

	for _, name := range shared {
		events = append(events, diffSheet(name, old[name], cur[name])...)
	}
	return events
}

// DiffResource is Diff with the resource ID stamped on every event.
func DiffResource(resourceID string, old, cur Snapshot) []ChangeEvent {
	events := Diff(old, cur)
	for i := range events {
		events[i].Resource = resourceID
	}
	return events
}

func diffSheet(name string, old, cur Sheet) []ChangeEvent {
	addrs := make(map[string]struct{}, len(old)+len(cur))
	for a := range old {
		addrs[a] = struct{}{}
	}
	for a := range cur {
		addrs[a] = struct{}{}
	}
	sorted := make([]string, 0, len(addrs))
	for a := range addrs {
		sorted = append(sorted, a)
	}
	sort.Strings(sorted)

	var events []ChangeEvent
	for _, addr := range sorted {
		ov, inOld := old[addr]
		nv, inNew := cur[addr]
		switch {
		case inOld && inNew:
			if ov != nv {
				events = append(events, ChangeEvent{Kind: CellUpdated, Sheet: name, Cell: addr, OldValue: ov, NewValue: nv})
			}
		case inNew:
			events = append(events, ChangeEvent{Kind: CellCreated, Sheet: name, Cell: addr, NewValue: nv})
		default:
			events = append(events, ChangeEvent{Kind: CellDeleted, Sheet: name, Cell: addr, OldValue: ov})
		}
	}
	return events
}
