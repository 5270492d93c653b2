package musicfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
)

const lockName = ".lock"

// Entry is one month document inside a music root.
type Entry struct {
	Key  catalog.PartitionKey
	Path string
}

// Root is a music root whose layout has been checked: nothing but four digit
// year directories, each holding exactly the twelve month documents.
type Root struct {
	path    string
	entries []Entry
}

// MonthPath returns the location of the document for one partition.
func MonthPath(root string, key catalog.PartitionKey) string {
	return filepath.Join(root, fmt.Sprintf("%04d", key.Year), fmt.Sprintf("%02d.json", int(key.Month)))
}

func parseYear(name string) (int, bool) {
	if len(name) != 4 {
		return 0, false
	}

	for _, c := range name {
		if c < '0' || c > '9' {
			return 0, false
		}
	}

	n, _ := strconv.Atoi(name)

	return n, true
}

// OpenRoot reads the directory structure under path. Every problem found is
// reported in a single joined error.
func OpenRoot(path string) (*Root, error) {
	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("musicfile.OpenRoot: %w", err)
	}

	r := &Root{path: path}

	var errs []error
	for _, d := range dirEntries {
		if d.Name() == lockName && !d.IsDir() {
			continue
		}

		year, ok := parseYear(d.Name())
		if !ok || !d.IsDir() {
			errs = append(errs, &PathError{Path: filepath.Join(path, d.Name()), Err: ErrNotYearDir})
			continue
		}

		entries, err := readYear(path, year)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		r.entries = append(r.entries, entries...)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("musicfile.OpenRoot: %w", errors.Join(errs...))
	}

	sort.Slice(r.entries, func(i, j int) bool { return r.entries[i].Key.Less(r.entries[j].Key) })

	return r, nil
}

func readYear(root string, year int) ([]Entry, error) {
	dir := filepath.Join(root, fmt.Sprintf("%04d", year))

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &PathError{Path: dir, Err: err}
	}

	present := make(map[time.Month]bool)

	var errs []error
	for _, d := range dirEntries {
		month, ok := parseMonthFile(d.Name())
		if !ok || d.IsDir() {
			errs = append(errs, &PathError{Path: filepath.Join(dir, d.Name()), Err: ErrUnexpectedFile})
			continue
		}

		present[month] = true
	}

	entries := make([]Entry, 0, 12)
	for m := time.January; m <= time.December; m++ {
		if !present[m] {
			errs = append(errs, &MissingMonthError{Year: year, Month: m})
			continue
		}

		key := catalog.PartitionKey{Year: year, Month: m}
		entries = append(entries, Entry{Key: key, Path: MonthPath(root, key)})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return entries, nil
}

func parseMonthFile(name string) (time.Month, bool) {
	if len(name) != len("01.json") || filepath.Ext(name) != ".json" {
		return 0, false
	}

	n, err := strconv.Atoi(name[:2])
	if err != nil || n < 1 || n > 12 {
		return 0, false
	}

	return time.Month(n), true
}

func (r *Root) Path() string { return r.path }

func (r *Root) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}
