package musicfile

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotYearDir     = errors.New("expected a four digit year directory")
	ErrUnexpectedFile = errors.New("expected only 01.json to 12.json")
	ErrLocked         = errors.New("music root is locked by another process")
)

// PathError ties a failure to the file or directory it came from.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

type MissingMonthError struct {
	Year  int
	Month time.Month
}

func (e *MissingMonthError) Error() string {
	return fmt.Sprintf("missing month file for %04d/%02d", e.Year, int(e.Month))
}
