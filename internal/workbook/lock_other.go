//go:build !unix

package workbook

import (
	"fmt"
	"os"
)

// probeLock opens the file for writing. Spreadsheet applications hold an
// exclusive share mode while a document is open, which makes this fail.
func probeLock(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		return false, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return true, nil
	}
	_ = f.Close()
	return false, nil
}
