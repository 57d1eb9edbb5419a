package bandit

import (
	"testing"

	"github.com/iqrahapp/iqrah-core/internal/config"
	"github.com/iqrahapp/iqrah-core/internal/sqlitedb"
)

func newTestOptimizer(t *testing.T) *Optimizer {
	t.Helper()
	db, err := sqlitedb.Open(":memory:", sqlitedb.ReadWrite)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlitedb.Migrate(db, sqlitedb.UserMigrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db, config.DefaultConfig().Bandit.Profiles)
}

func TestSelect_ReturnsKnownProfile(t *testing.T) {
	o := newTestOptimizer(t)
	arm, err := o.Select("u1", "memorization")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if _, ok := o.profiles[arm.Name]; !ok {
		t.Fatalf("expected arm name to be one of the configured profiles, got %s", arm.Name)
	}
}

func TestReward_Formula(t *testing.T) {
	r := Reward(8, 10, 10)
	want := 0.6*0.8 + 0.4*1.0
	if !almostEqual(r, want) {
		t.Fatalf("expected %v, got %v", want, r)
	}
}

func TestReward_ZeroCompleted(t *testing.T) {
	if Reward(0, 0, 10) != 0 {
		t.Fatalf("expected 0 reward when nothing completed")
	}
}

func almostEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
