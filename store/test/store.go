package test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hrygo/chatdigest/internal/profile"
	"github.com/hrygo/chatdigest/store"
	"github.com/hrygo/chatdigest/store/db"
)

// NewTestingStore opens a migrated store for the driver named by the DRIVER env (sqlite by default).
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()
	return NewTestingStoreWithProfile(ctx, t, getTestingProfile(t))
}

func NewTestingStoreWithProfile(ctx context.Context, t *testing.T, profile *profile.Profile) *store.Store {
	t.Helper()
	dbDriver, err := db.NewDBDriver(profile)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}
	ts := store.New(dbDriver, profile)
	t.Cleanup(func() {
		ts.Close()
	})
	if err := ts.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	if profile.Driver == "postgres" {
		resetPostgres(ctx, t, ts)
	}
	return ts
}

func getTestingProfile(t *testing.T) *profile.Profile {
	t.Helper()
	driver := getDriverFromEnv()
	dir := t.TempDir()
	p := &profile.Profile{
		Mode:                   "dev",
		Data:                   dir,
		Driver:                 driver,
		MaxConcurrentSummaries: profile.DefaultMaxConcurrentSummaries,
	}
	switch driver {
	case "postgres":
		p.DSN = GetPostgresDSN(t)
	default:
		p.DSN = filepath.Join(dir, fmt.Sprintf("chatdigest_%s.db", p.Mode))
	}
	return p
}

func getDriverFromEnv() string {
	if driver := os.Getenv("DRIVER"); driver != "" {
		return driver
	}
	return "sqlite"
}

// resetPostgres empties the shared backlog so tests start clean.
func resetPostgres(ctx context.Context, t *testing.T, ts *store.Store) {
	t.Helper()
	if _, err := ts.GetDriver().GetDB().ExecContext(ctx, "TRUNCATE conversation_line RESTART IDENTITY"); err != nil {
		t.Fatalf("failed to reset conversation_line: %v", err)
	}
}
