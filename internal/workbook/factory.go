package workbook

import "fmt"

const (
	BackendTypeExcelize = "excelize"
	BackendTypeMemory   = "memory"
)

// NewBackendFromConfig creates a Backend based on the backend type.
// "excelize" (default) works on real files, "memory" keeps workbooks in memory.
func NewBackendFromConfig(backendType, fillColor string) (Backend, error) {
	switch backendType {
	case BackendTypeMemory:
		return NewMemoryBackend(), nil
	case BackendTypeExcelize, "":
		return NewExcelizeBackend(fillColor), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s (supported: %s, %s)", backendType, BackendTypeExcelize, BackendTypeMemory)
	}
}
