// cmd/manage administers the trade store from the command line.
//
// Usage:
//
//	go run ./cmd/manage init-db
//	go run ./cmd/manage load format1 data/trades_format1.csv
//	go run ./cmd/manage clear -yes
//
// The store is selected with the same STORE_DRIVER, SQLITE_PATH and
// DATABASE_URL settings the server uses.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"portfolio-clearinghouse/config"
	"portfolio-clearinghouse/internal/ingest"
	"portfolio-clearinghouse/internal/logger"
	"portfolio-clearinghouse/internal/model"
	"portfolio-clearinghouse/internal/store/postgres"
	"portfolio-clearinghouse/internal/store/sqlite"
)

const usage = `usage: manage <command> [args]

commands:
  init-db                 create the trades table and indexes
  load <format> <path>    ingest a format1 or format2 file
  clear [-yes]            delete every stored trade
`

var errUsage = errors.New("invalid usage")

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Init("manage", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("store open failed", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}

	err = run(ctx, os.Args[1:], store, os.Stdin, os.Stdout)
	store.Close()
	if errors.Is(err, errUsage) {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// openStore opens the configured store, creating the schema if missing.
func openStore(ctx context.Context, cfg *config.Config) (model.TradeStore, error) {
	if cfg.StoreDriver == config.DriverPostgres {
		return postgres.Open(ctx, cfg.DatabaseURL)
	}
	return sqlite.Open(cfg.SQLitePath)
}

func run(ctx context.Context, args []string, store model.TradeStore, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "init-db":
		// Opening the store already created the schema.
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("init-db: %w", err)
		}
		fmt.Fprintln(out, "Database initialized")
		return nil

	case "load":
		if len(args) != 3 {
			return errUsage
		}
		format, ok := model.ParseFileFormat(args[1])
		if !ok {
			return fmt.Errorf("load: %w: %q", ingest.ErrUnknownFormat, args[1])
		}
		res, err := ingest.NewService(store).IngestFile(ctx, args[2], format)
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}
		fmt.Fprintf(out, "Loaded %d trades from %s (%d rejected)\n", res.Accepted, args[2], res.Rejected)
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  %s\n", e)
		}
		return nil

	case "clear":
		fs := flag.NewFlagSet("clear", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		yes := fs.Bool("yes", false, "skip the confirmation prompt")
		if err := fs.Parse(args[1:]); err != nil {
			return errUsage
		}
		if !*yes && !confirm(in, out, "Delete all trades? [y/N] ") {
			fmt.Fprintln(out, "Aborted")
			return nil
		}
		n, err := store.DeleteAll(ctx)
		if err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		fmt.Fprintf(out, "Deleted %d trades\n", n)
		return nil
	}
	return errUsage
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
