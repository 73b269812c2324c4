package gwobj

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"cloudpico-sensorbridge/internal/db/migrate"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Fatalf("close db: %v", closeErr)
		}
	})
	if err := migrate.Run(context.Background(), db, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestRepository_Empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	records, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("List: got %d records, want 0", len(records))
	}
}

func TestRepository_NameAndBlockMerge(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))

	if err := repo.SaveName(ctx, "AA:AA:AA:AA:AA:01", "tank"); err != nil {
		t.Fatalf("SaveName: %v", err)
	}
	if err := repo.SaveName(ctx, "AA:AA:AA:AA:AA:01", "tank-north"); err != nil {
		t.Fatalf("SaveName (update): %v", err)
	}
	if err := repo.SetBlocked(ctx, "AA:AA:AA:AA:AA:01", true); err != nil {
		t.Fatalf("SetBlocked: %v", err)
	}
	if err := repo.SetBlocked(ctx, "AA:AA:AA:AA:AA:02", true); err != nil {
		t.Fatalf("SetBlocked: %v", err)
	}
	if err := repo.SetBlocked(ctx, "AA:AA:AA:AA:AA:02", false); err != nil {
		t.Fatalf("SetBlocked (clear): %v", err)
	}

	records, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("List: got %d records, want 2", len(records))
	}

	first := records[0]
	if first.Address != "AA:AA:AA:AA:AA:01" || first.EndpointName != "tank-north" || !first.Blocked {
		t.Errorf("records[0] = %+v", first)
	}
	if first.UpdatedAt.IsZero() {
		t.Error("records[0].UpdatedAt is zero")
	}
	second := records[1]
	if second.Address != "AA:AA:AA:AA:AA:02" || second.EndpointName != "" || second.Blocked {
		t.Errorf("records[1] = %+v", second)
	}
}
