package workbook

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bassista/sheetwatch/internal/logger"
)

// DefaultMarker is the text that triggers highlighting when no other marker is configured.
const DefaultMarker = "触发"

// Cell is what a Predicate sees of a single non-empty cell.
type Cell struct {
	Sheet   string
	Address string
	Value   string
}

// Predicate decides whether a cell should be highlighted.
type Predicate func(Cell) bool

// ContainsMarker matches cells whose text contains marker.
func ContainsMarker(marker string) Predicate {
	return func(c Cell) bool {
		return marker != "" && strings.Contains(c.Value, marker)
	}
}

// predicateEnv is the variable set available to highlight conditions.
type predicateEnv struct {
	Value  string `expr:"value"`
	Sheet  string `expr:"sheet"`
	Cell   string `expr:"cell"`
	Marker string `expr:"marker"`
}

// NewPredicate builds the highlight predicate. With an empty condition it is a
// plain marker substring match; otherwise condition is an expr-lang boolean
// expression over value, sheet, cell and marker, e.g.
//
//	value contains marker && sheet != "Archive"
func NewPredicate(marker, condition string) (Predicate, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return ContainsMarker(marker), nil
	}

	program, err := expr.Compile(condition, expr.Env(predicateEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile highlight condition %q: %w", condition, err)
	}
	return exprPredicate(program, marker, condition), nil
}

func exprPredicate(program *vm.Program, marker, condition string) Predicate {
	return func(c Cell) bool {
		out, err := expr.Run(program, predicateEnv{Value: c.Value, Sheet: c.Sheet, Cell: c.Address, Marker: marker})
		if err != nil {
			logger.WithComponent("highlight").Debugf("condition %q failed on %s!%s: %v", condition, c.Sheet, c.Address, err)
			return false
		}
		b, ok := out.(bool)
		return ok && b
	}
}
