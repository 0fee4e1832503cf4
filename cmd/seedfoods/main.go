// cmd/seedfoods/main.go loads nutrition CSV files into the food table,
// replacing its previous contents.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"nutrition-coach/config"
	"nutrition-coach/internal/catalog"
	"nutrition-coach/internal/db"
	"nutrition-coach/internal/models"
	"nutrition-coach/pkg/logger"
)

func main() {
	driver := pflag.String("driver", "", "database driver (postgres or sqlite), overrides DB_DRIVER")
	path := pflag.String("sqlite-path", "", "SQLite file, overrides DB_PATH")
	timeout := pflag.Duration("timeout", 5*time.Minute, "time allowed for the import")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: seedfoods [flags] FILE.csv...\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	l := logger.New(os.Getenv("APP_ENV"))
	defer l.Sync()

	if pflag.NArg() == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		l.Fatalw("Failed to load config", "error", err)
	}
	if *driver != "" {
		cfg.DB.Driver = *driver
	}
	if *path != "" {
		cfg.DB.Path = *path
	}

	var items []models.FoodItem
	for _, name := range pflag.Args() {
		parsed, err := parseFile(name)
		if err != nil {
			l.Fatalw("Failed to parse food file", "file", name, "error", err)
		}
		l.Infow("Parsed food file", "file", name, "rows", len(parsed))
		items = append(items, parsed...)
	}

	store, err := db.Open(cfg.DB)
	if err != nil {
		l.Fatalw("Failed to connect to database", "driver", cfg.DB.Driver, "error", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		l.Fatalw("Failed to migrate database", "error", err)
	}

	n, err := store.ReplaceFoods(ctx, items)
	if err != nil {
		l.Fatalw("Failed to load foods", "error", err)
	}
	l.Infow("Food catalog replaced", "rows", n, "files", pflag.NArg())
}

func parseFile(name string) ([]models.FoodItem, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return catalog.Parse(f)
}
