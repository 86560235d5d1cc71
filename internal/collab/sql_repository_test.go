package collab

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestDriverNameMapsAliases(t *testing.T) {
	cases := map[string]string{
		"postgres":   "postgres",
		"postgresql": "postgres",
		"mysql":      "mysql",
		"sqlite":     "sqlite3",
		"sqlite3":    "sqlite3",
		"unknown":    "unknown",
	}
	for in, want := range cases {
		if got := DriverName(in); got != want {
			t.Errorf("DriverName(%q) = %q, want %q", in, got, want)
		}
	}
}

// testSQLRepository opens a file-backed sqlite database (not ":memory:",
// whose per-connection isolation under database/sql's pool makes it
// unreliable across the multiple statements a single test issues) and
// returns it with the schema already created.
func testSQLRepository(t *testing.T) *SQLRepository {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "bancho_test.db")
	repo, err := NewSQLRepository("sqlite3", dsn)
	if err != nil {
		t.Fatalf("NewSQLRepository() error: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedUser(t *testing.T, repo *SQLRepository, id int32, name string) {
	t.Helper()
	_, err := repo.db.Exec(`INSERT INTO users (id, name, safe_name, password_hash, email, activated)
		VALUES (?, ?, ?, ?, ?, ?)`, id, name, SafeName(name), "hash", "", true)
	if err != nil {
		t.Fatalf("seedUser() error: %v", err)
	}
}

func TestSQLUserByIDAndByNameRoundTrip(t *testing.T) {
	repo := testSQLRepository(t)
	seedUser(t, repo, 1, "cookiezi")
	ctx := context.Background()

	byID, err := repo.UserByID(ctx, 1)
	if err != nil {
		t.Fatalf("UserByID() error: %v", err)
	}
	if byID.Name != "cookiezi" {
		t.Fatalf("UserByID().Name = %q, want cookiezi", byID.Name)
	}

	byName, err := repo.UserByName(ctx, "COOKIEZI")
	if err != nil {
		t.Fatalf("UserByName() error: %v", err)
	}
	if byName.ID != 1 {
		t.Fatalf("UserByName().ID = %d, want 1", byName.ID)
	}
}

func TestSQLUserByIDNotFound(t *testing.T) {
	repo := testSQLRepository(t)
	if _, err := repo.UserByID(context.Background(), 999); err != ErrNotFound {
		t.Fatalf("UserByID() error = %v, want ErrNotFound", err)
	}
}

func TestSQLUpdateUserPersistsChanges(t *testing.T) {
	repo := testSQLRepository(t)
	seedUser(t, repo, 1, "cookiezi")
	ctx := context.Background()

	u, err := repo.UserByID(ctx, 1)
	if err != nil {
		t.Fatalf("UserByID() error: %v", err)
	}
	u.Permissions = 7
	u.Restricted = true
	if err := repo.UpdateUser(ctx, u); err != nil {
		t.Fatalf("UpdateUser() error: %v", err)
	}

	got, err := repo.UserByID(ctx, 1)
	if err != nil {
		t.Fatalf("UserByID() error: %v", err)
	}
	if got.Permissions != 7 || !got.Restricted {
		t.Fatalf("UserByID() after update = %+v", got)
	}
}

func TestSQLCreateAndFetchStats(t *testing.T) {
	repo := testSQLRepository(t)
	seedUser(t, repo, 1, "cookiezi")
	ctx := context.Background()

	if _, err := repo.CreateStats(ctx, 1, 0); err != nil {
		t.Fatalf("CreateStats() error: %v", err)
	}
	stats, err := repo.FetchStats(ctx, 1, 0)
	if err != nil {
		t.Fatalf("FetchStats() error: %v", err)
	}
	stats.RankedScore = 123456
	stats.PP = 700
	if err := repo.UpdateStats(ctx, stats); err != nil {
		t.Fatalf("UpdateStats() error: %v", err)
	}

	got, err := repo.FetchStats(ctx, 1, 0)
	if err != nil {
		t.Fatalf("FetchStats() error: %v", err)
	}
	if got.RankedScore != 123456 || got.PP != 700 {
		t.Fatalf("FetchStats() after update = %+v", got)
	}
}

func TestSQLFetchStatsNotFound(t *testing.T) {
	repo := testSQLRepository(t)
	if _, err := repo.FetchStats(context.Background(), 1, 0); err != ErrNotFound {
		t.Fatalf("FetchStats() error = %v, want ErrNotFound", err)
	}
}

func TestSQLCreateInfringementMarksUserRestricted(t *testing.T) {
	repo := testSQLRepository(t)
	seedUser(t, repo, 1, "cheater")
	ctx := context.Background()

	if err := repo.CreateInfringement(ctx, Infringement{UserID: 1, Reason: "cheating"}); err != nil {
		t.Fatalf("CreateInfringement() error: %v", err)
	}
	u, err := repo.UserByID(ctx, 1)
	if err != nil {
		t.Fatalf("UserByID() error: %v", err)
	}
	if !u.Restricted {
		t.Fatal("expected user restricted after infringement")
	}
}

func TestSQLSilenceSetAndExpire(t *testing.T) {
	repo := testSQLRepository(t)
	seedUser(t, repo, 1, "noisy")
	ctx := context.Background()

	if err := repo.SetSilence(ctx, 1, time.Now().Add(time.Hour), "spam"); err != nil {
		t.Fatalf("SetSilence() error: %v", err)
	}
	if _, silenced, err := repo.ActiveSilence(ctx, 1); err != nil || !silenced {
		t.Fatalf("ActiveSilence() = (_, %v, %v), want silenced=true", silenced, err)
	}

	if err := repo.SetSilence(ctx, 1, time.Now().Add(-time.Hour), "expired"); err != nil {
		t.Fatalf("SetSilence() error: %v", err)
	}
	if _, silenced, err := repo.ActiveSilence(ctx, 1); err != nil || silenced {
		t.Fatalf("ActiveSilence() = (_, %v, %v), want silenced=false after expiry", silenced, err)
	}
}

func TestSQLActiveSilenceNoneSet(t *testing.T) {
	repo := testSQLRepository(t)
	seedUser(t, repo, 1, "quiet")

	if _, silenced, err := repo.ActiveSilence(context.Background(), 1); err != nil || silenced {
		t.Fatalf("ActiveSilence() = (_, %v, %v), want silenced=false with no rows", silenced, err)
	}
}
