package displays

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/signage/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DisplaysRepository defines what the app layer needs from the repository
type DisplaysRepository interface {
	GetDisplayByPublicID(ctx context.Context, publicID string) (*models.Display, error)
	ListMenusForDisplay(ctx context.Context, displayID uuid.UUID) ([]models.Menu, error)
}

// Content is a display together with its menus in rotation order
type Content struct {
	Display models.Display
	Menus   []models.Menu
}

// App handles display lookup and content resolution
type App struct {
	repo DisplaysRepository
}

// NewApp creates a new displays App
func NewApp(repo DisplaysRepository) *App {
	return &App{
		repo: repo,
	}
}

// GetDisplay retrieves a display by its public identifier
func (a *App) GetDisplay(ctx context.Context, publicID string) (*models.Display, error) {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		return nil, fmt.Errorf("%w: public id is required", ErrDisplayNotFound)
	}

	display, err := a.repo.GetDisplayByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, ErrDisplayNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get display: %w", err)
	}

	normalizeDisplay(display)
	return display, nil
}

// LoadContent resolves a display and the menus it rotates through
func (a *App) LoadContent(ctx context.Context, publicID string) (*Content, error) {
	display, err := a.GetDisplay(ctx, publicID)
	if err != nil {
		return nil, err
	}

	menus, err := a.repo.ListMenusForDisplay(ctx, display.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load menus for display %s: %w", publicID, err)
	}

	log.Debug().
		Str("display_id", publicID).
		Int("menus", len(menus)).
		Int("interval_ms", display.IntervalMs).
		Msg("display content resolved")

	return &Content{Display: *display, Menus: menus}, nil
}

// normalizeDisplay fills in defaults for values the players cannot act on.
func normalizeDisplay(d *models.Display) {
	if d.IntervalMs <= 0 {
		d.IntervalMs = DefaultIntervalMs
	}
	if !d.TransitionMode.Valid() {
		log.Warn().
			Str("display_id", d.PublicID).
			Str("transition_mode", string(d.TransitionMode)).
			Msg("unknown transition mode, using normal")
		d.TransitionMode = models.TransitionModeNormal
	}
}
