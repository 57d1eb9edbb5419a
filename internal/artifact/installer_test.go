package artifact

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/iqrahapp/iqrah-core/internal/sqlitedb"
)

// buildContentDB creates a migrated content database at path with one node
// row per ukey and a graph_version row in artifact_meta.
func buildContentDB(t *testing.T, path string, graphVersion string, ukeys []string) {
	t.Helper()
	db, err := sqlitedb.Open(path, sqlitedb.ReadWrite)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer db.Close()
	if err := sqlitedb.Migrate(db, sqlitedb.ContentMigrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for i, uk := range ukeys {
		if _, err := db.Exec(`INSERT INTO nodes (id, ukey, node_type, quran_order) VALUES (?,?,?,?)`,
			i+1, uk, "verse", i+1); err != nil {
			t.Fatalf("insert node: %v", err)
		}
	}
	if _, err := db.Exec(`INSERT INTO artifact_meta (key, value) VALUES ('graph_version', ?)`, graphVersion); err != nil {
		t.Fatalf("insert graph_version: %v", err)
	}
}

// packArchive tars+gzips dbPath's contents into archivePath under the name
// Install expects (content.db).
func packArchive(t *testing.T, dbPath, archivePath string) {
	t.Helper()
	data, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatalf("read db: %v", err)
	}

	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{Name: dbEntryName, Size: int64(len(data)), Mode: 0o644}); err != nil {
		t.Fatalf("tar header: %v", err)
	}
	if _, err := tw.Write(data); err != nil {
		t.Fatalf("tar write: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
}

func TestInstall_FreshInstall_NoBaselineSkipsStabilityCheck(t *testing.T) {
	dir := t.TempDir()
	srcDB := filepath.Join(dir, "source.db")
	buildContentDB(t, srcDB, "v1", []string{"1:1", "1:2"})

	archive := filepath.Join(dir, "release.tar.gz")
	packArchive(t, srcDB, archive)

	dest := filepath.Join(dir, "content.db")
	inst := New(dest)

	version, err := inst.Install(archive, "digest-v1")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if version != "v1" {
		t.Fatalf("expected graph_version v1, got %s", version)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("expected installed file at %s: %v", dest, err)
	}
}

func TestInstall_RejectsArtifactThatDropsBaselineUkey(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "content.db")
	buildContentDB(t, dest, "v1", []string{"1:1", "1:2", "1:3"})

	nextDB := filepath.Join(dir, "next.db")
	buildContentDB(t, nextDB, "v2", []string{"1:1", "1:2"}) // drops 1:3

	archive := filepath.Join(dir, "release.tar.gz")
	packArchive(t, nextDB, archive)

	inst := New(dest)
	if _, err := inst.Install(archive, "digest-v2"); err == nil {
		t.Fatalf("expected stability violation error")
	}
}

func TestInstall_AcceptsSupersetOfBaselineUkeys(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "content.db")
	buildContentDB(t, dest, "v1", []string{"1:1", "1:2"})

	nextDB := filepath.Join(dir, "next.db")
	buildContentDB(t, nextDB, "v2", []string{"1:1", "1:2", "1:3"}) // adds content

	archive := filepath.Join(dir, "release.tar.gz")
	packArchive(t, nextDB, archive)

	inst := New(dest)
	swapped := false
	inst.OnInstalled = func() { swapped = true }

	version, err := inst.Install(archive, "digest-v2")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if version != "v2" {
		t.Fatalf("expected graph_version v2, got %s", version)
	}
	if !swapped {
		t.Fatalf("expected OnInstalled callback to run")
	}
}

func TestInstall_RejectsArchiveMissingDBEntry(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "empty.tar.gz")
	f, err := os.Create(archive)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	tw.Close()
	gz.Close()
	f.Close()

	inst := New(filepath.Join(dir, "content.db"))
	if _, err := inst.Install(archive, "digest-empty"); err == nil {
		t.Fatalf("expected error for archive with no content.db entry")
	}
}

func TestCheckStability_Direct(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.db")
	buildContentDB(t, base, "v1", []string{"1:1", "1:2"})

	candOK := filepath.Join(dir, "cand_ok.db")
	buildContentDB(t, candOK, "v2", []string{"1:1", "1:2", "1:3"})
	if err := CheckStability(base, candOK); err != nil {
		t.Fatalf("expected superset candidate to pass, got %v", err)
	}

	candBad := filepath.Join(dir, "cand_bad.db")
	buildContentDB(t, candBad, "v2", []string{"1:1"})
	if err := CheckStability(base, candBad); err == nil {
		t.Fatalf("expected dropped-ukey candidate to fail")
	}
}
