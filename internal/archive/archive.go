// Package archive moves verified stage artifacts out of hot storage:
// date-keyed zip bundles first, deletion strictly after. Cleanup without a
// passing verification for the same scope is refused, not retried.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fundsync/platform/logger"
)

// Archiver writes compressed bundles under <dataDir>/archive/<date>/.
type Archiver struct {
	dataDir string
	log     *logger.Logger
	cold    *ColdStore
}

func New(dataDir string, log *logger.Logger, cold *ColdStore) *Archiver {
	return &Archiver{dataDir: dataDir, log: log, cold: cold}
}

// BundlePath returns the bundle location for a scope label on a date.
func (a *Archiver) BundlePath(date, label string) string {
	return filepath.Join(a.dataDir, "archive", date, label+".zip")
}

// BundleDirectory zips every file under srcDir into the date-keyed bundle,
// preserving paths relative to srcDir. An absent or empty directory
// produces no bundle and no error. Returns the number of files bundled.
func (a *Archiver) BundleDirectory(date, label, srcDir string) (int, error) {
	var files []string
	err := filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("walk %s: %w", srcDir, err)
	}
	return a.bundle(date, label, srcDir, files)
}

func (a *Archiver) bundle(date, label, baseDir string, files []string) (int, error) {
	if len(files) == 0 {
		return 0, nil
	}
	sort.Strings(files)

	zipPath := a.BundlePath(date, label)
	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return 0, fmt.Errorf("create archive dir: %w", err)
	}

	f, err := os.Create(zipPath)
	if err != nil {
		return 0, fmt.Errorf("create bundle %s: %w", zipPath, err)
	}
	zw := zip.NewWriter(f)

	for _, path := range files {
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		if err := a.addFile(zw, path, filepath.ToSlash(rel)); err != nil {
			zw.Close()
			f.Close()
			os.Remove(zipPath)
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(zipPath)
		return 0, fmt.Errorf("finalize bundle %s: %w", zipPath, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close bundle %s: %w", zipPath, err)
	}

	a.log.Info("archived scope", "label", label, "date", date, "files", len(files), "bundle", zipPath)

	if a.cold != nil {
		if err := a.cold.Upload(zipPath, date+"/"+label+".zip"); err != nil {
			// Hot-storage bundle exists; cold upload is best effort.
			a.log.Warn("cold store upload failed", "bundle", zipPath, "error", err)
		}
	}
	return len(files), nil
}

func (a *Archiver) addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("add %s to bundle: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write %s to bundle: %w", name, err)
	}
	return nil
}

// CleanupDir removes every CSV under root and prunes emptied directories.
// Dry-run counts without deleting.
func CleanupDir(root string, dryRun bool) (int, error) {
	var csvs []string
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root {
				dirs = append(dirs, path)
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".csv") {
			csvs = append(csvs, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if dryRun {
		return len(csvs), nil
	}

	removed := 0
	for _, path := range csvs {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove %s: %w", path, err)
		}
		removed++
	}
	// Deepest first so parents empty out before their own removal attempt.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) == 0 {
			os.Remove(dir)
		}
	}
	return removed, nil
}
