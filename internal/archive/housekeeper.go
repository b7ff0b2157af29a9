package archive

import (
	"fundsync/platform/apperr"
	"fundsync/platform/logger"
)

// Housekeeper sequences verify, archive and cleanup for hot-storage
// scopes. The ordering invariant lives here: cleanup runs only for a
// scope whose verification passed and whose archive step completed.
type Housekeeper struct {
	arch *Archiver
	log  *logger.Logger

	verified map[string]bool
	archived map[string]bool
}

func NewHousekeeper(arch *Archiver, log *logger.Logger) *Housekeeper {
	return &Housekeeper{
		arch:     arch,
		log:      log,
		verified: make(map[string]bool),
		archived: make(map[string]bool),
	}
}

// MarkVerified records a scope's verification outcome.
func (h *Housekeeper) MarkVerified(scope string, ok bool) {
	h.verified[scope] = ok
}

// Verified reports whether a scope passed verification.
func (h *Housekeeper) Verified(scope string) bool {
	return h.verified[scope]
}

// Archive bundles a scope's directories into the date-keyed archive.
// Refuses scopes that did not pass verification.
func (h *Housekeeper) Archive(scope, date string, targets map[string]string) (int, error) {
	if !h.verified[scope] {
		return 0, apperr.Conflict("scope has no passing verification").WithOp("archive " + scope)
	}
	total := 0
	for label, dir := range targets {
		n, err := h.arch.BundleDirectory(date, label, dir)
		if err != nil {
			return total, err
		}
		total += n
	}
	h.archived[scope] = true
	return total, nil
}

// Cleanup deletes a scope's hot-storage CSVs. Refuses unless the scope
// was verified and archived in this run; dry-run only counts.
func (h *Housekeeper) Cleanup(scope string, roots []string, dryRun bool) (int, error) {
	if !h.verified[scope] {
		h.log.Warn("cleanup skipped: scope not verified", "scope", scope)
		return 0, apperr.Conflict("scope has no passing verification").WithOp("cleanup " + scope)
	}
	if !h.archived[scope] {
		h.log.Warn("cleanup skipped: scope not archived", "scope", scope)
		return 0, apperr.Conflict("scope was not archived first").WithOp("cleanup " + scope)
	}
	total := 0
	for _, root := range roots {
		n, err := CleanupDir(root, dryRun)
		if err != nil {
			return total, err
		}
		total += n
	}
	h.log.Info("cleanup complete", "scope", scope, "files", total, "dry_run", dryRun)
	return total, nil
}
