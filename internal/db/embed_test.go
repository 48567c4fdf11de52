package db

import (
	"io/fs"
	"strings"
	"testing"
)

// TestEmbeddedMigrationsFS verifies every embedded up migration has a down.
func TestEmbeddedMigrationsFS(t *testing.T) {
	origDevMode := DevMode
	DevMode = false
	defer func() { DevMode = origDevMode }()

	migFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS() failed: %v", err)
	}

	ups, err := fs.Glob(migFS, "*.up.sql")
	if err != nil {
		t.Fatalf("Failed to list migrations: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no embedded migrations")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(migFS, down); err != nil {
			t.Errorf("%s has no matching %s", up, down)
		}
	}

	latest, err := LatestMigrationVersion(migFS)
	if err != nil {
		t.Fatalf("LatestMigrationVersion failed: %v", err)
	}
	if int(latest) != len(ups) {
		t.Errorf("latest version %d, want %d (one per up file)", latest, len(ups))
	}
}
