package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"agentdesk.io/internal/migrate"
	"agentdesk.io/internal/obs"
)

func main() {
	var (
		dsn            = flag.String("dsn", os.Getenv("AGENTDESK_DATABASE__DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "", "Directory with *.up.sql/*.down.sql (default: embedded schema)")
		seedsPath      = flag.String("seeds", "", "Directory with seed *.sql (default: embedded seeds, none when -migrations is set)")
		timeout        = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Parse()
	obs.ConfigureLogging(obs.LogConfig{Format: "console"})
	log := obs.Logger()

	if *dsn == "" {
		log.Fatal().Msg("missing DSN: provide via -dsn or AGENTDESK_DATABASE__DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal().Msg("usage: migrate [up|down|seed|status|pending]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	var opts []migrate.Option
	if *migrationsPath != "" || *seedsPath != "" {
		opts = append(opts, migrate.WithFS(fsOrNil(*migrationsPath), fsOrNil(*seedsPath)))
	}
	mgr := migrate.NewManager(db, opts...)

	var names []string
	switch cmd := flag.Arg(0); cmd {
	case "up":
		names, err = mgr.Up(ctx)
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			log.Info().Msg("nothing to roll back")
			return
		}
		names = []string{name}
	case "seed":
		names, err = mgr.Seed(ctx)
	case "status":
		names, err = mgr.Status(ctx)
	case "pending":
		names, err = mgr.Pending(ctx)
	default:
		log.Fatal().Str("command", cmd).Msg("unknown command")
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", flag.Arg(0)).Strs("done", names).Msg("migrate failed")
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func fsOrNil(dir string) fs.FS {
	if dir == "" {
		return nil
	}
	return os.DirFS(dir)
}
