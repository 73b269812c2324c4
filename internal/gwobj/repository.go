package gwobj

import (
	"context"
	"database/sql"
	_ "embed"
	"log/slog"
	"time"
)

//go:embed sql/list-beacons.sql
var listBeaconsSQL string

//go:embed sql/save-name.sql
var saveNameSQL string

//go:embed sql/set-blocked.sql
var setBlockedSQL string

// Record is the persisted state of one address.
type Record struct {
	Address      string
	EndpointName string
	Blocked      bool
	UpdatedAt    time.Time
}

type Repository interface {
	List(ctx context.Context) ([]Record, error)
	SaveName(ctx context.Context, address, name string) error
	SetBlocked(ctx context.Context, address string, blocked bool) error
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, listBeaconsSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close beacons rows", "error", err)
		}
	}()

	var out []Record
	for rows.Next() {
		var rec Record
		var ts string
		if err := rows.Scan(&rec.Address, &rec.EndpointName, &rec.Blocked, &ts); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			t, _ = time.Parse(time.RFC3339, ts)
		}
		rec.UpdatedAt = t
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) SaveName(ctx context.Context, address, name string) error {
	_, err := r.db.ExecContext(ctx, saveNameSQL, address, name)
	return err
}

func (r *repositoryImpl) SetBlocked(ctx context.Context, address string, blocked bool) error {
	_, err := r.db.ExecContext(ctx, setBlockedSQL, address, blocked)
	return err
}
