package displays

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/signage/go/internal/models"
	"github.com/mcdev12/signage/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// Schema creates the tables the repository reads from.
//
//go:embed schema.sql
var Schema string

// DefaultIntervalMs is used for displays without a stored interval.
const DefaultIntervalMs = 10000

// DBTX is what the repository needs from *sql.DB or *sql.Tx
type DBTX interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository reads displays and menus from Postgres
type Repository struct {
	db DBTX
}

// NewRepository creates a new displays repository
func NewRepository(db DBTX) *Repository {
	return &Repository{
		db: db,
	}
}

const getDisplayByPublicID = `
SELECT id, public_id, name, interval_ms, transition_mode, created_at, updated_at
FROM displays
WHERE public_id = $1`

// GetDisplayByPublicID retrieves a display and its ordered menu IDs
func (r *Repository) GetDisplayByPublicID(ctx context.Context, publicID string) (*models.Display, error) {
	var (
		d          models.Display
		intervalMs sql.NullInt32
		mode       sql.NullString
	)
	err := r.db.QueryRowContext(ctx, getDisplayByPublicID, publicID).Scan(
		&d.ID, &d.PublicID, &d.Name, &intervalMs, &mode, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrDisplayNotFound, publicID)
		}
		return nil, fmt.Errorf("failed to get display: %w", err)
	}

	d.IntervalMs = sqlutil.FromSqlInt32(intervalMs, DefaultIntervalMs)
	d.TransitionMode = models.TransitionMode(sqlutil.FromSqlString(mode, string(models.TransitionModeNormal)))

	menuIDs, err := r.listMenuIDs(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.MenuIDs = menuIDs

	return &d, nil
}

const listMenuIDs = `
SELECT menu_id
FROM display_menus
WHERE display_id = $1
ORDER BY position`

func (r *Repository) listMenuIDs(ctx context.Context, displayID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, listMenuIDs, displayID)
	if err != nil {
		return nil, fmt.Errorf("failed to list display menus: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan menu id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate display menus: %w", err)
	}
	return ids, nil
}

const listMenusForDisplay = `
SELECT m.id, m.name, m.kind, m.images, m.created_at, m.updated_at
FROM display_menus dm
JOIN menus m ON m.id = dm.menu_id
WHERE dm.display_id = $1
ORDER BY dm.position`

// ListMenusForDisplay retrieves a display's menus in rotation order
func (r *Repository) ListMenusForDisplay(ctx context.Context, displayID uuid.UUID) ([]models.Menu, error) {
	rows, err := r.db.QueryContext(ctx, listMenusForDisplay, displayID)
	if err != nil {
		return nil, fmt.Errorf("failed to list menus for display: %w", err)
	}
	defer rows.Close()

	var menus []models.Menu
	for rows.Next() {
		var (
			m         models.Menu
			kind      string
			images    pqtype.NullRawMessage
			createdAt time.Time
			updatedAt time.Time
		)
		if err := rows.Scan(&m.ID, &m.Name, &kind, &images, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan menu: %w", err)
		}
		m.Kind = models.MenuKind(kind)
		m.CreatedAt = createdAt
		m.UpdatedAt = updatedAt
		if err := sqlutil.DecodeNullRawMessage(images, &m.Images); err != nil {
			return nil, fmt.Errorf("menu %s images: %w", m.ID, err)
		}
		menus = append(menus, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate menus: %w", err)
	}
	return menus, nil
}
