package workbook

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bassista/sheetwatch/internal/logger"
	"github.com/bassista/sheetwatch/internal/snapshot"
)

// ExcelizeBackend reads and writes .xlsx/.xlsm workbooks on disk.
type ExcelizeBackend struct {
	fillColor string
}

// NewExcelizeBackend creates a disk backend. An empty fillColor selects DefaultFillColor.
func NewExcelizeBackend(fillColor string) *ExcelizeBackend {
	fillColor = strings.ToUpper(strings.TrimPrefix(fillColor, "#"))
	if fillColor == "" {
		fillColor = DefaultFillColor
	}
	return &ExcelizeBackend{fillColor: fillColor}
}

// Reader is a read-only handle on one workbook. Close must be called.
type Reader struct {
	file *excelize.File
}

// OpenForRead opens path for reading. The OS file handle is released before
// return; the workbook content stays in memory until Close.
func OpenForRead(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrFormat, filepath.Base(path), err)
	}
	return &Reader{file: f}, nil
}

// ListSheets returns sheet names in workbook order.
func (r *Reader) ListSheets() []string {
	return r.file.GetSheetList()
}

// CellsOf returns the non-empty cells of sheet.
func (r *Reader) CellsOf(sheet string) (snapshot.Sheet, error) {
	rows, err := r.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read rows of %q: %v", ErrFormat, sheet, err)
	}
	cells := snapshot.Sheet{}
	for r, row := range rows {
		for c, value := range row {
			if strings.TrimSpace(value) == "" {
				continue
			}
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrFormat, err)
			}
			cells[name] = value
		}
	}
	return cells, nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}

func (b *ExcelizeBackend) Probe(path string) (bool, error) {
	return probeLock(path)
}

func (b *ExcelizeBackend) Capture(ctx context.Context, path string) (snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	locked, err := b.Probe(path)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, fmt.Errorf("%w: %s is locked by another process", ErrResourceUnavailable, filepath.Base(path))
	}

	r, err := OpenForRead(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	snap := snapshot.New()
	for _, sheet := range r.ListSheets() {
		cells, err := r.CellsOf(sheet)
		if err != nil {
			return nil, err
		}
		// sheets without values stay: sheet events follow the workbook sheet list
		snap.AddSheet(sheet)
		for addr, value := range cells {
			snap.Set(sheet, addr, value)
		}
	}
	logger.WithResource("capture", path).Debugf("captured %d sheets, %d cells", len(snap), snap.CellCount())
	return snap, nil
}

func (b *ExcelizeBackend) Highlight(ctx context.Context, path string, match Predicate) (HighlightResult, error) {
	log := logger.WithResource("highlight", path)

	locked, err := b.Probe(path)
	if err != nil {
		return HighlightResult{}, err
	}
	if locked {
		return HighlightResult{}, fmt.Errorf("%w: %s is locked by another process", ErrResourceUnavailable, filepath.Base(path))
	}

	w, err := OpenForWrite(path)
	if err != nil {
		return HighlightResult{}, err
	}
	defer w.Discard()

	var result HighlightResult
	styles := map[int]int{} // original style ID -> highlighted style ID
	for _, sheet := range w.file.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return HighlightResult{}, err
		}
		rows, err := w.file.GetRows(sheet)
		if err != nil {
			return HighlightResult{}, fmt.Errorf("%w: read rows of %q: %v", ErrFormat, sheet, err)
		}
		for r, row := range rows {
			for c, value := range row {
				if strings.TrimSpace(value) == "" {
					continue
				}
				addr, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					return HighlightResult{}, fmt.Errorf("%w: %v", ErrFormat, err)
				}
				if !match(Cell{Sheet: sheet, Address: addr, Value: value}) {
					continue
				}
				changed, err := b.highlightCell(w.file, sheet, addr, styles)
				if err != nil {
					return HighlightResult{}, err
				}
				if changed {
					log.Infof("found trigger text in %s!%s", sheet, addr)
					result.Cells = append(result.Cells, sheet+"!"+addr)
				}
			}
		}
	}

	if len(result.Cells) == 0 {
		return result, nil
	}

	backup, err := w.Commit()
	if err != nil {
		return HighlightResult{}, err
	}
	result.Modified = true
	result.BackupPath = backup
	log.Infof("highlighted %d cells, backup written to %s", len(result.Cells), filepath.Base(backup))
	return result, nil
}

// highlightCell merges the fill and centered alignment into the cell's
// current style. Cells already carrying both are left alone.
func (b *ExcelizeBackend) highlightCell(f *excelize.File, sheet, addr string, cache map[int]int) (bool, error) {
	styleID, err := f.GetCellStyle(sheet, addr)
	if err != nil {
		return false, fmt.Errorf("%w: style of %s!%s: %v", ErrFormat, sheet, addr, err)
	}

	if newID, ok := cache[styleID]; ok {
		if newID == styleID {
			return false, nil
		}
		return true, f.SetCellStyle(sheet, addr, addr, newID)
	}

	style, err := f.GetStyle(styleID)
	if err != nil || style == nil {
		style = &excelize.Style{}
	}
	if b.isHighlighted(style) {
		cache[styleID] = styleID
		return false, nil
	}

	style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{b.fillColor}}
	if style.Alignment == nil {
		style.Alignment = &excelize.Alignment{}
	}
	style.Alignment.Horizontal = "center"
	style.Alignment.Vertical = "center"

	newID, err := f.NewStyle(style)
	if err != nil {
		// some styles read back from foreign files do not round-trip; fall back to a plain one
		newID, err = f.NewStyle(&excelize.Style{
			Fill:      style.Fill,
			Alignment: style.Alignment,
		})
		if err != nil {
			return false, fmt.Errorf("create highlight style: %w", err)
		}
	}
	cache[styleID] = newID
	return true, f.SetCellStyle(sheet, addr, addr, newID)
}

func (b *ExcelizeBackend) isHighlighted(style *excelize.Style) bool {
	if style.Fill.Type != "pattern" || style.Fill.Pattern != 1 || len(style.Fill.Color) == 0 {
		return false
	}
	if !strings.HasSuffix(strings.ToUpper(style.Fill.Color[0]), b.fillColor) {
		return false
	}
	return style.Alignment != nil && style.Alignment.Horizontal == "center" && style.Alignment.Vertical == "center"
}
