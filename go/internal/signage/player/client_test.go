package player

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/signage/go/internal/displays"
	"github.com/mcdev12/signage/go/internal/models"
	"github.com/mcdev12/signage/go/internal/signage/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		want    string
		wantErr bool
	}{
		{name: "http base", base: "http://gateway:8081", want: "ws://gateway:8081/ws/display"},
		{name: "https base", base: "https://signage.example.com/", want: "wss://signage.example.com/ws/display"},
		{name: "explicit socket", base: "ws://localhost:8081/ws/display", want: "ws://localhost:8081/ws/display"},
		{name: "bad scheme", base: "ftp://gateway", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SocketURL(tt.base)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientConfig_WithDefaults(t *testing.T) {
	cfg := ClientConfig{MinBackoff: 5 * time.Second, MaxBackoff: time.Second}.withDefaults()

	assert.Equal(t, "ws://localhost:8081/ws/display", cfg.GatewayURL)
	assert.Equal(t, 5*time.Second, cfg.MinBackoff)
	assert.Equal(t, 5*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
}

// outageLoader fails every load while down is set.
type outageLoader struct {
	gateway.ContentLoader
	down atomic.Bool
}

func (l *outageLoader) LoadContent(ctx context.Context, publicID string) (*displays.Content, error) {
	if l.down.Load() {
		return nil, errors.New("connection refused")
	}
	return l.ContentLoader.LoadContent(ctx, publicID)
}

type liveGateway struct {
	svc    *gateway.Service
	repo   *displays.MemoryRepository
	loader *outageLoader
	url    string
}

func startGateway(t *testing.T) *liveGateway {
	t.Helper()

	repo := displays.NewMemoryRepository()
	menu := models.Menu{
		ID:   displays.StableID("menu", "welcome"),
		Name: "Welcome",
		Kind: models.MenuKindCustom,
	}
	repo.PutMenu(menu)
	repo.PutDisplay(models.Display{
		ID:             displays.StableID("display", "lobby"),
		PublicID:       "lobby",
		IntervalMs:     5000,
		TransitionMode: models.TransitionModeNormal,
		MenuIDs:        []uuid.UUID{menu.ID},
	})

	loader := &outageLoader{ContentLoader: displays.NewApp(repo)}
	svc, err := gateway.NewService(gateway.DefaultConfig(), loader, clockwork.NewRealClock())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Start(ctx)

	router := mux.NewRouter()
	svc.RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &liveGateway{svc: svc, repo: repo, loader: loader, url: srv.URL}
}

func runClient(t *testing.T, gw *liveGateway, displayID string) (*Player, *Client) {
	t.Helper()

	clock := clockwork.NewRealClock()
	p := New(displayID, clock, LogRenderer{DisplayID: displayID})
	t.Cleanup(p.Close)

	client := NewClient(ClientConfig{
		GatewayURL: gw.url,
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
	}, p, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, client.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p, client
}

func TestClient_RegistersAndFollowsCommands(t *testing.T) {
	gw := startGateway(t)
	p, _ := runClient(t, gw, "lobby")

	require.Eventually(t, p.Registered, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, p.Steps())

	require.NoError(t, gw.svc.Coordinator().Pause(gateway.AllDisplays()))
	require.Eventually(t, func() bool { return p.State().Paused }, 2*time.Second, 10*time.Millisecond)

	target := time.Now().Add(100 * time.Millisecond)
	require.NoError(t, gw.svc.Coordinator().Resume(gateway.Displays("lobby"), target))
	require.Eventually(t, func() bool {
		state := p.State()
		return !state.Paused && target.Equal(state.ReferenceStart)
	}, 2*time.Second, 10*time.Millisecond)

	_, running := p.Current()
	assert.True(t, running)
}

func TestClient_UnknownDisplayKeepsRetrying(t *testing.T) {
	gw := startGateway(t)
	p, _ := runClient(t, gw, "ghost")

	require.Eventually(t, func() bool { return p.Failure() != "" }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, p.Failure(), "ghost")
	assert.False(t, p.Registered())

	_, running := p.Current()
	assert.False(t, running)
}

func TestClient_ReloadReregisters(t *testing.T) {
	gw := startGateway(t)
	p, client := runClient(t, gw, "lobby")

	require.Eventually(t, p.Registered, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, p.Steps())

	// Change the stored content without pushing it.
	gallery := models.Menu{
		ID:   displays.StableID("menu", "gallery"),
		Kind: models.MenuKindImageSet,
		Images: []models.ImageRef{
			{ID: "1", URL: "https://cdn.example.com/1.png"},
			{ID: "2", URL: "https://cdn.example.com/2.png"},
		},
	}
	gw.repo.PutMenu(gallery)
	gw.repo.PutDisplay(models.Display{
		ID:             displays.StableID("display", "lobby"),
		PublicID:       "lobby",
		IntervalMs:     5000,
		TransitionMode: models.TransitionModeNormal,
		MenuIDs:        []uuid.UUID{displays.StableID("menu", "welcome"), gallery.ID},
	})

	client.Reload()

	require.Eventually(t, func() bool { return p.Steps() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, p.Registered())
	assert.Eventually(t, func() bool {
		return gw.svc.GetStats()["total_connections"] == 1
	}, 2*time.Second, 10*time.Millisecond, "the replaced socket is dropped")
}

func TestClient_ContentOutageKeepsSchedule(t *testing.T) {
	gw := startGateway(t)
	p, client := runClient(t, gw, "lobby")

	require.Eventually(t, p.Registered, 2*time.Second, 10*time.Millisecond)
	before := p.State()

	gw.loader.down.Store(true)
	client.Reload()

	require.Eventually(t, func() bool {
		return p.Failure() == "failed to load display content"
	}, 2*time.Second, 10*time.Millisecond)

	_, running := p.Current()
	assert.True(t, running, "rotation continues while the gateway cannot load content")
	assert.Equal(t, 1, p.Steps())
	assert.True(t, before.ReferenceStart.Equal(p.State().ReferenceStart))

	gw.loader.down.Store(false)
	require.Eventually(t, func() bool { return p.Failure() == "" }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, p.Registered())
	_, running = p.Current()
	assert.True(t, running)
}
