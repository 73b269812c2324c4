package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"cloudpico-sensorbridge/internal/ble"
	"cloudpico-sensorbridge/internal/gwobj"
	"cloudpico-sensorbridge/internal/measure"
)

// Objects is the administrative view of the gateway object store.
type Objects interface {
	List() []gwobj.Object
	Blocked() []string
	Delete(addr string) error
	Block(ctx context.Context, addr string) error
	Unblock(ctx context.Context, addr string) error
}

type LatestValues interface {
	Latest(idx int) []measure.Reading
}

type Deps struct {
	DB        *sql.DB
	Connected func() bool
	Stats     *ble.Stats
	TableFull func() bool
	// LastActivity is the time of the most recently admitted event.
	LastActivity func() time.Time
	Objects      Objects
	Latest       LatestValues
	Metrics      http.Handler
}

func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, d)
	registerStats(mux, d)
	registerBeacons(mux, d)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}
	return mux
}

func NewServer(addr string, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           requestLogger(slog.Default().With("component", "httpapi"), mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
