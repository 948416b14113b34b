package main

import (
	"context"
	"database/sql"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"reviewhub.org/internal/auth"
	"reviewhub.org/internal/migrate"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

//go:embed seeds/*.sql
var seedFiles embed.FS

func main() {
	log.SetFlags(0)
	dsn := flag.String("dsn", os.Getenv("REVIEWHUB_DATABASE_URL"), "PostgreSQL DSN")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or REVIEWHUB_DATABASE_URL")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	migrations, err := fs.Sub(migrationFiles, "sql")
	if err != nil {
		log.Fatalf("migrations fs: %v", err)
	}
	seeds, err := fs.Sub(seedFiles, "seeds")
	if err != nil {
		log.Fatalf("seeds fs: %v", err)
	}
	runner := migrate.New(db, migrations, seeds)

	switch flag.Arg(0) {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "seed":
		// The permission catalog lives in code; materialize it before the
		// seed files that join against it.
		if err = auth.NewPGStore(db).Permissions().Ensure(ctx, auth.BuiltinPermissions); err == nil {
			err = runner.Seed(ctx)
		}
	case "status":
		var history []string
		history, err = runner.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
