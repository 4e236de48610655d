package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff_NilBaselineProducesNoEvents(t *testing.T) {
	cur := Snapshot{"Sheet1": {"A1": "hello"}}

	assert.Empty(t, Diff(nil, cur))
	assert.Empty(t, Diff(nil, nil))
}

func TestDiff_IdenticalSnapshots(t *testing.T) {
	s := Snapshot{
		"Sheet1": {"A1": "hello", "B2": "world"},
		"Data":   {"C3": "42"},
	}

	assert.Empty(t, Diff(s, s.Clone()))
}

func TestDiff_EmptyBaselineIsStillDiffed(t *testing.T) {
	events := Diff(New(), Snapshot{"Sheet1": {"A1": "x"}})

	require.Len(t, events, 1)
	assert.Equal(t, SheetCreated, events[0].Kind)
	assert.Equal(t, "Sheet1", events[0].Sheet)
}

func TestDiff_CellUpdatedScenario(t *testing.T) {
	old := Snapshot{"Sheet1": {"A1": "hello"}}
	cur := Snapshot{"Sheet1": {"A1": "触发 now"}}

	events := Diff(old, cur)

	require.Len(t, events, 1)
	assert.Equal(t, ChangeEvent{
		Kind:     CellUpdated,
		Sheet:    "Sheet1",
		Cell:     "A1",
		OldValue: "hello",
		NewValue: "触发 now",
	}, events[0])
}

func TestDiff_Ordering(t *testing.T) {
	old := Snapshot{
		"Alpha":   {"A1": "1"},
		"Shared":  {"A1": "same", "A2": "gone", "B1": "before", "A10": "x"},
		"Zremove": {"A1": "z"},
	}
	cur := Snapshot{
		"Beta":   {"A1": "new sheet"},
		"Shared": {"A1": "same", "B1": "after", "C1": "added", "A10": "y"},
		"Zadd":   {},
	}

	events := Diff(old, cur)

	want := []ChangeEvent{
		{Kind: SheetRemoved, Sheet: "Alpha"},
		{Kind: SheetCreated, Sheet: "Beta"},
		{Kind: SheetCreated, Sheet: "Zadd"},
		{Kind: SheetRemoved, Sheet: "Zremove"},
		{Kind: CellUpdated, Sheet: "Shared", Cell: "A10", OldValue: "x", NewValue: "y"},
		{Kind: CellDeleted, Sheet: "Shared", Cell: "A2", OldValue: "gone"},
		{Kind: CellUpdated, Sheet: "Shared", Cell: "B1", OldValue: "before", NewValue: "after"},
		{Kind: CellCreated, Sheet: "Shared", Cell: "C1", NewValue: "added"},
	}
	assert.Equal(t, want, events)
}

func TestDiff_MultipleSharedSheetsGroupedByName(t *testing.T) {
	old := Snapshot{"B": {"A1": "1"}, "A": {"A1": "1"}}
	cur := Snapshot{"B": {"A1": "2"}, "A": {"A1": "2"}}

	events := Diff(old, cur)

	require.Len(t, events, 2)
	assert.Equal(t, "A", events[0].Sheet)
	assert.Equal(t, "B", events[1].Sheet)
}

// Every differing cell yields exactly one event and unchanged cells yield none.
func TestDiff_PartitionsSymmetricDifference(t *testing.T) {
	old := Snapshot{"S": {}}
	cur := Snapshot{"S": {}}
	expected := map[string]Kind{}

	for i := 0; i < 60; i++ {
		addr := cellName(i)
		switch i % 4 {
		case 0: // unchanged
			old["S"][addr] = "v"
			cur["S"][addr] = "v"
		case 1:
			old["S"][addr] = "v"
			cur["S"][addr] = "w"
			expected[addr] = CellUpdated
		case 2:
			old["S"][addr] = "v"
			expected[addr] = CellDeleted
		case 3:
			cur["S"][addr] = "w"
			expected[addr] = CellCreated
		}
	}

	events := Diff(old, cur)
	require.Len(t, events, len(expected))

	seen := map[string]bool{}
	for i, e := range events {
		assert.False(t, seen[e.Cell], "duplicate event for %s", e.Cell)
		seen[e.Cell] = true
		assert.Equal(t, expected[e.Cell], e.Kind, "cell %s", e.Cell)
		if i > 0 {
			assert.Less(t, events[i-1].Cell, e.Cell)
		}
	}
}

func TestDiff_Deterministic(t *testing.T) {
	old := Snapshot{"S1": {"A1": "a", "B1": "b"}, "S2": {"A1": "x"}}
	cur := Snapshot{"S1": {"A1": "c", "C1": "d"}, "S3": {"A1": "y"}}

	first := Diff(old, cur)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Diff(old, cur))
	}
	assert.Equal(t, Snapshot{"S1": {"A1": "a", "B1": "b"}, "S2": {"A1": "x"}}, old, "diff must not mutate its input")
}

func TestDiffResource_StampsResource(t *testing.T) {
	events := DiffResource("/books/a.xlsx", Snapshot{"S": {"A1": "1"}}, Snapshot{"S": {"A1": "2"}})

	require.Len(t, events, 1)
	assert.Equal(t, "/books/a.xlsx", events[0].Resource)
}

func TestChangeEvent_String(t *testing.T) {
	tests := []struct {
		event ChangeEvent
		want  string
	}{
		{ChangeEvent{Kind: SheetCreated, Sheet: "S"}, "Sheet created 'S'"},
		{ChangeEvent{Kind: SheetRemoved, Sheet: "S"}, "Sheet removed 'S'"},
		{ChangeEvent{Kind: CellCreated, Sheet: "S", Cell: "A1", NewValue: "n"}, "[S] Cell created A1 = 'n'"},
		{ChangeEvent{Kind: CellDeleted, Sheet: "S", Cell: "A1", OldValue: "o"}, "[S] Cell deleted A1 (was 'o')"},
		{ChangeEvent{Kind: CellUpdated, Sheet: "S", Cell: "A1", OldValue: "o", NewValue: "n"}, "[S] Cell updated A1 from 'o' to 'n'"},
	}

	for _, tt := range tests {
		t.Run(string(tt.event.Kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.String())
			assert.Equal(t, tt.event.Kind == SheetCreated || tt.event.Kind == SheetRemoved, tt.event.IsSheetEvent())
		})
	}
}

func cellName(i int) string {
	return string(rune('A'+i%26)) + string(rune('1'+i/26))
}
