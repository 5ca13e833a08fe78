package displays

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/signage/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRepo struct {
	*MemoryRepository
	menusErr error
}

func (f *failingRepo) ListMenusForDisplay(ctx context.Context, id uuid.UUID) ([]models.Menu, error) {
	if f.menusErr != nil {
		return nil, f.menusErr
	}
	return f.MemoryRepository.ListMenusForDisplay(ctx, id)
}

func seededRepo() *MemoryRepository {
	repo := NewMemoryRepository()
	breakfast := models.Menu{ID: StableID("menu", "breakfast"), Name: "Breakfast", Kind: models.MenuKindCustom}
	photos := models.Menu{
		ID:   StableID("menu", "photos"),
		Name: "Photos",
		Kind: models.MenuKindImageSet,
		Images: []models.ImageRef{
			{ID: "a", URL: "https://cdn.example.com/a.jpg"},
			{ID: "b", URL: "https://cdn.example.com/b.jpg"},
		},
	}
	repo.PutMenu(breakfast)
	repo.PutMenu(photos)
	repo.PutDisplay(models.Display{
		ID:             StableID("display", "lobby"),
		PublicID:       "lobby",
		Name:           "Lobby",
		IntervalMs:     8000,
		TransitionMode: models.TransitionModePush,
		MenuIDs:        []uuid.UUID{photos.ID, breakfast.ID},
	})
	repo.PutDisplay(models.Display{
		ID:             StableID("display", "bare"),
		PublicID:       "bare",
		TransitionMode: "sideways",
	})
	return repo
}

func TestApp_LoadContent(t *testing.T) {
	app := NewApp(seededRepo())

	content, err := app.LoadContent(context.Background(), "lobby")
	require.NoError(t, err)

	assert.Equal(t, "lobby", content.Display.PublicID)
	assert.Equal(t, 8000, content.Display.IntervalMs)
	assert.Equal(t, models.TransitionModePush, content.Display.TransitionMode)
	require.Len(t, content.Menus, 2)
	assert.Equal(t, "Photos", content.Menus[0].Name, "menus keep display order")
	assert.Equal(t, "Breakfast", content.Menus[1].Name)
}

func TestApp_GetDisplayAppliesDefaults(t *testing.T) {
	app := NewApp(seededRepo())

	d, err := app.GetDisplay(context.Background(), " bare ")
	require.NoError(t, err)
	assert.Equal(t, DefaultIntervalMs, d.IntervalMs)
	assert.Equal(t, models.TransitionModeNormal, d.TransitionMode)
}

func TestApp_NotFound(t *testing.T) {
	app := NewApp(seededRepo())

	tests := []struct {
		name     string
		publicID string
	}{
		{name: "unknown", publicID: "nope"},
		{name: "empty", publicID: ""},
		{name: "blank", publicID: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := app.LoadContent(context.Background(), tt.publicID)
			assert.ErrorIs(t, err, ErrDisplayNotFound)
		})
	}
}

func TestApp_LoadContentMenuFailure(t *testing.T) {
	boom := errors.New("connection reset")
	app := NewApp(&failingRepo{MemoryRepository: seededRepo(), menusErr: boom})

	_, err := app.LoadContent(context.Background(), "lobby")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrDisplayNotFound)
}
