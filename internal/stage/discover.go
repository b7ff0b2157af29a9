package stage

import (
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DateLayout is the calendar key used for stage directories and archive
// bundles.
const DateLayout = "2006-01-02"

// ListDates returns the date-named subdirectories of dir in ascending
// order. Entries that are not valid dates are ignored.
func ListDates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dates []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(DateLayout, e.Name()); err == nil {
			dates = append(dates, e.Name())
		}
	}
	sort.Strings(dates)
	return dates, nil
}

// LatestDate returns the most recent date directory under dir, false when
// none exists.
func LatestDate(dir string) (string, bool, error) {
	dates, err := ListDates(dir)
	if err != nil {
		return "", false, err
	}
	if len(dates) == 0 {
		return "", false, nil
	}
	return dates[len(dates)-1], true, nil
}

// ListArtifacts returns the CSV files directly under a stage date
// directory, sorted by name.
func ListArtifacts(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
