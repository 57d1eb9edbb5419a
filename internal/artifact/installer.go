// Package artifact installs content graph artifacts: compressed tar
// archives containing a complete SQLite database plus a schema_version
// row, per spec.md §6. Installation is atomic (extract to a temp file,
// rename into place) and gated by a stability check against the
// currently-installed baseline.
package artifact

import (
	"archive/tar"
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/iqrahapp/iqrah-core/internal/cache"
	"github.com/iqrahapp/iqrah-core/internal/logging"
	"github.com/iqrahapp/iqrah-core/internal/sqlitedb"
)

// dbEntryName is the name the packaging pipeline gives the SQLite file
// inside the archive.
const dbEntryName = "content.db"

// Installer installs content artifacts to a fixed destination path,
// caching which archive checksums have already passed a stability check.
// The cache is cleared after every successful install, so a digest skips
// the baseline scan only when an earlier call verified it and then failed
// before the rename.
type Installer struct {
	destPath string
	verified *cache.Owner[bool]

	// OnInstalled, if set, runs after a successful rename. A caller can set
	// it to the live content.Store's Swap so its LRU caches never serve
	// stale rows after an artifact is replaced underneath it.
	OnInstalled func()
}

// New returns an Installer that installs to destPath (the content
// database path the running Store reads from).
func New(destPath string) *Installer {
	return &Installer{destPath: destPath, verified: cache.NewOwner[bool]()}
}

// IsVerified reports whether an archive with this digest already passed
// the stability check in this process.
func (i *Installer) IsVerified(digest string) bool {
	ok, _ := i.verified.Get(digest)
	return ok
}

func (i *Installer) markVerified(digest string) {
	i.verified.Set(digest, true)
}

// InvalidateVerification clears the verification cache, used after the
// baseline itself changes (a fresh Install), since a digest verified
// against the old baseline says nothing about the new one.
func (i *Installer) InvalidateVerification() {
	i.verified.Clear()
}

// Install extracts archivePath's SQLite database to a temp file next to
// the destination, validates it has a schema_version row, runs the
// stability check against any existing baseline at destPath, and
// atomically renames the temp file into place. On success it returns the
// installed graph_version read from artifact_meta.
func (i *Installer) Install(archivePath, digest string) (string, error) {
	timer := logging.StartTimer(logging.CategoryArtifact, "Install")
	defer timer.Stop()

	tmpPath, err := extractToTemp(archivePath, filepath.Dir(i.destPath))
	if err != nil {
		return "", err
	}
	defer os.Remove(tmpPath) // no-op once renamed

	graphVersion, err := validateArtifact(tmpPath)
	if err != nil {
		return "", err
	}

	if !i.IsVerified(digest) {
		if _, err := os.Stat(i.destPath); err == nil {
			if err := CheckStability(i.destPath, tmpPath); err != nil {
				return "", err
			}
		}
		i.markVerified(digest)
	}

	if err := os.Rename(tmpPath, i.destPath); err != nil {
		return "", fmt.Errorf("%w: rename into place: %v", ErrInvalid, err)
	}
	i.InvalidateVerification()
	if i.OnInstalled != nil {
		i.OnInstalled()
	}
	logging.Get(logging.CategoryArtifact).Info("installed content artifact graph_version=%s", graphVersion)
	return graphVersion, nil
}

// extractToTemp reads a gzip-compressed tar archive containing a single
// content.db entry and writes it to a temp file in dir, returning its
// path. The caller owns renaming or removing the temp file.
func extractToTemp(archivePath, dir string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("%w: open archive: %v", ErrInvalid, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: gzip: %v", ErrInvalid, err)
	}
	defer gz.Close()

	tmp, err := os.CreateTemp(dir, "content-*.db.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", ErrInvalid, err)
	}
	tmpPath := tmp.Name()

	tr := tar.NewReader(gz)
	found := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return "", fmt.Errorf("%w: tar: %v", ErrInvalid, err)
		}
		if hdr.Typeflag != tar.TypeReg || filepath.Base(hdr.Name) != dbEntryName {
			continue
		}
		if _, err := io.Copy(tmp, tr); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return "", fmt.Errorf("%w: extract %s: %v", ErrInvalid, dbEntryName, err)
		}
		found = true
		break
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: close temp file: %v", ErrInvalid, err)
	}
	if !found {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: archive has no %s entry", ErrInvalid, dbEntryName)
	}
	return tmpPath, nil
}

// validateArtifact opens a candidate database read-only and confirms it
// carries a schema_version row, returning its graph_version from
// artifact_meta. The version number itself is not compared against
// ContentMigrations.
func validateArtifact(path string) (string, error) {
	db, err := sqlitedb.Open(path, sqlitedb.ReadOnly)
	if err != nil {
		return "", fmt.Errorf("%w: open candidate: %v", ErrInvalid, err)
	}
	defer db.Close()

	var version int
	if err := db.QueryRow(`SELECT version FROM schema_version WHERE id = 1`).Scan(&version); err != nil {
		return "", fmt.Errorf("%w: missing schema_version: %v", ErrInvalid, err)
	}

	var graphVersion string
	err = db.QueryRow(`SELECT value FROM artifact_meta WHERE key = 'graph_version'`).Scan(&graphVersion)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: missing artifact_meta.graph_version", ErrInvalid)
	}
	if err != nil {
		return "", fmt.Errorf("%w: read graph_version: %v", ErrInvalid, err)
	}
	return graphVersion, nil
}

// CheckStability asserts that every ukey present in the baseline database
// at basePath also exists in the candidate at candidatePath, rejecting
// any rebuild that removes content a user's memory state may reference.
// Only ukey presence is checked: node ids are not compared, so a ukey
// that keeps its string but gets a different id passes.
func CheckStability(basePath, candidatePath string) error {
	base, err := sqlitedb.Open(basePath, sqlitedb.ReadOnly)
	if err != nil {
		return fmt.Errorf("%w: open baseline: %v", ErrInvalid, err)
	}
	defer base.Close()

	cand, err := sqlitedb.Open(candidatePath, sqlitedb.ReadOnly)
	if err != nil {
		return fmt.Errorf("%w: open candidate: %v", ErrInvalid, err)
	}
	defer cand.Close()

	baseUkeys, err := allUkeys(base)
	if err != nil {
		return fmt.Errorf("%w: read baseline ukeys: %v", ErrInvalid, err)
	}
	candSet, err := allUkeys(cand)
	if err != nil {
		return fmt.Errorf("%w: read candidate ukeys: %v", ErrInvalid, err)
	}
	candUkeys := allUkeysSetFrom(candSet)

	for _, uk := range baseUkeys {
		if !candUkeys[uk] {
			return fmt.Errorf("%w: ukey %q present in baseline is missing from candidate", ErrStabilityViolation, uk)
		}
	}
	return nil
}

func allUkeys(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT ukey FROM nodes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uk string
		if err := rows.Scan(&uk); err != nil {
			return nil, err
		}
		out = append(out, uk)
	}
	return out, rows.Err()
}

// allUkeysSetFrom is a convenience wrapper used by CheckStability.
func allUkeysSetFrom(keys []string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}
