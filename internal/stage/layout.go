package stage

import "path/filepath"

// Hot-storage layout under the data root. Staging holds the merged,
// cleaned producer output; hashed holds the fingerprinted, date-keyed
// artifacts the loader and integrity gate consume.
const (
	StagingDirName = "staging"
	HashedDirName  = "hashed"
)

// Master-list and NAV artifact names. The validated NAV file is preferred
// and the merged file is the fallback when validation output is absent.
const (
	MasterArtifact       = "master_list_final.csv"
	NAVArtifactPreferred = "validated_daily_nav.csv"
	NAVArtifactFallback  = "merged_daily_nav.csv"
)

// StagingDir returns the flat staging directory for a pipeline.
func StagingDir(root, pipeline string) string {
	return filepath.Join(root, StagingDirName, pipeline)
}

// HashedDir returns the date-keyed hashed directory for a pipeline.
func HashedDir(root, pipeline, date string) string {
	return filepath.Join(root, HashedDirName, pipeline, date)
}
