package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"cloudpico-sensorbridge/internal/config"
	"cloudpico-sensorbridge/internal/db"
	"cloudpico-sensorbridge/internal/gwobj"
)

const usage = `usage: %s <command> [args]
  migrate                 apply pending schema migrations
  beacons                 list persisted beacon records
  name <address> <name>   set the endpoint name used for an address
  block <address>         refuse an address on the next gateway start
  unblock <address>       clear a block
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Open applies migrations, so "migrate" needs nothing further.
	conn, err := db.Open(ctx, cfg, slog.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "db open: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()

	if err := run(ctx, conn, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, conn *sql.DB, cmd string, args []string) error {
	repo := gwobj.NewRepository(conn)

	switch cmd {
	case "migrate":
		fmt.Println("migrations applied")
		return nil

	case "beacons":
		recs, err := repo.List(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tNAME\tBLOCKED\tUPDATED")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", r.Address, r.EndpointName, r.Blocked, r.UpdatedAt.Format(time.RFC3339))
		}
		return w.Flush()

	case "name":
		if len(args) != 2 {
			return fmt.Errorf("expected <address> <name>")
		}
		addr, err := config.NormalizeAddress(args[0])
		if err != nil {
			return err
		}
		if err := config.ValidateEndpointName(args[1]); err != nil {
			return err
		}
		return repo.SaveName(ctx, addr, args[1])

	case "block", "unblock":
		if len(args) != 1 {
			return fmt.Errorf("expected <address>")
		}
		addr, err := config.NormalizeAddress(args[0])
		if err != nil {
			return err
		}
		return repo.SetBlocked(ctx, addr, cmd == "block")

	default:
		return fmt.Errorf("unknown command")
	}
}
