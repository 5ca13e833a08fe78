package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/signage/go/internal/dbconfig"
	"github.com/mcdev12/signage/go/internal/displays"
	"github.com/mcdev12/signage/go/internal/models"
	"github.com/mcdev12/signage/go/internal/sqlutil"
)

func main() {
	path := os.Getenv("DISPLAYS_FILE")
	if path == "" {
		path = "go/internal/assets/displays.yaml"
	}

	// 1) Load the YAML snapshot
	repo, err := displays.LoadMemoryRepository(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load displays: %v\n", err)
		os.Exit(1)
	}
	displayList, menus := repo.Snapshot()

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, displays.Schema); err != nil {
		fmt.Fprintf(os.Stderr, "create schema: %v\n", err)
		os.Exit(1)
	}

	// 3) Upsert menus, then displays with their ordered menu lists
	var menuCount, displayCount, errs int

	for _, m := range menus {
		if err := upsertMenu(ctx, pool, m); err != nil {
			fmt.Fprintf(os.Stderr, "error upserting menu %s: %v\n", m.Name, err)
			errs++
			continue
		}
		menuCount++
	}

	for _, d := range displayList {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			return upsertDisplay(ctx, tx, d)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error upserting display %s: %v\n", d.PublicID, err)
			errs++
			continue
		}
		displayCount++
	}

	// 4) Print summary
	fmt.Printf(
		"Displays seed complete: %d menus, %d displays, %d errors\n",
		menuCount, displayCount, errs,
	)
	if errs > 0 {
		os.Exit(1)
	}
}

func upsertMenu(ctx context.Context, pool *pgxpool.Pool, m models.Menu) error {
	var images json.RawMessage
	if len(m.Images) > 0 {
		data, err := json.Marshal(m.Images)
		if err != nil {
			return fmt.Errorf("marshal images: %w", err)
		}
		images = data
	}

	_, err := pool.Exec(ctx, `
        INSERT INTO menus (id, name, kind, images)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE
          SET name = EXCLUDED.name,
              kind = EXCLUDED.kind,
              images = EXCLUDED.images,
              updated_at = now()
    `, m.ID, m.Name, string(m.Kind), sqlutil.ToNullRawMessage(images))
	return err
}

func upsertDisplay(ctx context.Context, tx pgx.Tx, d models.Display) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO displays (id, public_id, name, interval_ms, transition_mode)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE
          SET public_id = EXCLUDED.public_id,
              name = EXCLUDED.name,
              interval_ms = EXCLUDED.interval_ms,
              transition_mode = EXCLUDED.transition_mode,
              updated_at = now()
    `, d.ID, d.PublicID, d.Name, d.IntervalMs, string(d.TransitionMode))
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM display_menus WHERE display_id = $1`, d.ID); err != nil {
		return err
	}

	for position, menuID := range d.MenuIDs {
		_, err := tx.Exec(ctx, `
            INSERT INTO display_menus (display_id, menu_id, position)
            VALUES ($1, $2, $3)
        `, d.ID, menuID, position)
		if err != nil {
			return err
		}
	}
	return nil
}
