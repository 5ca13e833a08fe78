package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/signage/go/internal/displays"
	"github.com/mcdev12/signage/go/internal/models"
	"github.com/mcdev12/signage/go/internal/playback"
	"github.com/mcdev12/signage/go/internal/signage/commands"
	"github.com/mcdev12/signage/go/internal/signage/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type delivery struct {
	target Target
	conn   *Connection
	event  *events.Envelope
}

type recordingBroadcaster struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (b *recordingBroadcaster) Broadcast(target Target, event *events.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliveries = append(b.deliveries, delivery{target: target, event: event})
}

func (b *recordingBroadcaster) SendTo(conn *Connection, event *events.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliveries = append(b.deliveries, delivery{conn: conn, event: event})
}

func (b *recordingBroadcaster) last(t *testing.T) delivery {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.deliveries)
	return b.deliveries[len(b.deliveries)-1]
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.deliveries)
}

type flakyLoader struct {
	err error
}

func (f flakyLoader) LoadContent(context.Context, string) (*displays.Content, error) {
	return nil, f.err
}

type fixture struct {
	clock    *clockwork.FakeClock
	repo     *displays.MemoryRepository
	registry *Registry
	out      *recordingBroadcaster
	coord    *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := displays.NewMemoryRepository()
	menu := models.Menu{
		ID:   displays.StableID("menu", "gallery"),
		Name: "Gallery",
		Kind: models.MenuKindImageSet,
		Images: []models.ImageRef{
			{ID: "1", URL: "https://cdn.example.com/1.png"},
			{ID: "2", URL: "https://cdn.example.com/2.png"},
		},
	}
	repo.PutMenu(menu)
	for _, id := range []string{"lobby", "patio"} {
		repo.PutDisplay(models.Display{
			ID:             displays.StableID("display", id),
			PublicID:       id,
			IntervalMs:     5000,
			TransitionMode: models.TransitionModePush,
			MenuIDs:        []uuid.UUID{menu.ID},
		})
	}

	f := &fixture{
		clock:    clockwork.NewFakeClockAt(start),
		repo:     repo,
		registry: NewRegistry(),
		out:      &recordingBroadcaster{},
	}
	f.coord = NewCoordinator(f.clock, displays.NewApp(repo), f.registry, f.out)
	return f
}

func (f *fixture) connect(t *testing.T, id, publicID string) *Connection {
	t.Helper()
	conn := newTestConnection(id)
	f.registry.Connect(conn)
	require.NoError(t, f.coord.Register(context.Background(), conn, publicID))
	return conn
}

func TestCoordinator_Register(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, "c1", "lobby")

	d := f.out.last(t)
	assert.Same(t, conn, d.conn)
	assert.Equal(t, events.EventTypeRegistered, d.event.Type)
	assert.Equal(t, "lobby", d.event.DisplayID)

	var payload events.RegisteredPayload
	require.NoError(t, d.event.Decode(&payload))
	assert.Equal(t, "lobby", payload.Display.PublicID)
	assert.True(t, DefaultAnchor.Equal(payload.Anchor), "anchor does not depend on gateway start")
	assert.False(t, payload.Paused)
	assert.Equal(t, 5000, payload.Content.IntervalMs)
	assert.Equal(t, models.TransitionModePush, payload.Content.TransitionMode)
	require.Len(t, payload.Content.Groups, 1)
	assert.Len(t, payload.Content.Groups[0].Images, 2)

	assert.Equal(t, StateRegistered, f.registry.State(conn))
}

func TestCoordinator_RegisterUnknownDisplay(t *testing.T) {
	f := newFixture(t)
	conn := newTestConnection("c1")
	f.registry.Connect(conn)

	err := f.coord.Register(context.Background(), conn, "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, displays.ErrDisplayNotFound)

	d := f.out.last(t)
	assert.Same(t, conn, d.conn)
	assert.Equal(t, events.EventTypeRegistrationFailed, d.event.Type)

	var payload events.FailurePayload
	require.NoError(t, d.event.Decode(&payload))
	assert.Contains(t, payload.Reason, "not found")

	assert.Equal(t, StateConnected, f.registry.State(conn))
	assert.Empty(t, f.registry.All())
}

func TestCoordinator_RegisterLoadFailureIsRetriable(t *testing.T) {
	f := newFixture(t)
	f.coord.loader = flakyLoader{err: errors.New("connection refused")}
	conn := newTestConnection("c1")
	f.registry.Connect(conn)

	require.Error(t, f.coord.Register(context.Background(), conn, "lobby"))

	d := f.out.last(t)
	assert.Same(t, conn, d.conn)
	assert.Equal(t, events.EventTypeUpdateFailed, d.event.Type, "only unknown displays are rejected")

	var payload events.FailurePayload
	require.NoError(t, d.event.Decode(&payload))
	assert.Equal(t, "lobby", payload.DisplayID)
	assert.Equal(t, "failed to load display content", payload.Reason)
	assert.Equal(t, StateConnected, f.registry.State(conn))

	// The same socket registers once the store answers again
	f.coord.loader = displays.NewApp(f.repo)
	require.NoError(t, f.coord.Register(context.Background(), conn, "lobby"))
	assert.Equal(t, events.EventTypeRegistered, f.out.last(t).event.Type)
	assert.Equal(t, StateRegistered, f.registry.State(conn))
}

func TestCoordinator_RegisterClosedConnection(t *testing.T) {
	f := newFixture(t)
	conn := newTestConnection("gone")

	err := f.coord.Register(context.Background(), conn, "lobby")
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.Zero(t, f.out.count())
}

func TestCoordinator_PauseThenLateRegistration(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "lobby")

	f.clock.Advance(time.Minute)
	require.NoError(t, f.coord.Pause(AllDisplays()))

	d := f.out.last(t)
	assert.True(t, d.target.IsAll())
	assert.Equal(t, events.EventTypePaused, d.event.Type)

	_, paused := f.coord.State("patio")
	assert.True(t, paused)

	f.connect(t, "c2", "patio")
	var payload events.RegisteredPayload
	require.NoError(t, f.out.last(t).event.Decode(&payload))
	assert.True(t, payload.Paused, "displays joining a paused fleet start paused")
}

func TestCoordinator_Resume(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "lobby")
	require.NoError(t, f.coord.Pause(AllDisplays()))

	f.clock.Advance(10 * time.Second)
	target := f.clock.Now().Add(3 * time.Second)
	require.NoError(t, f.coord.Resume(AllDisplays(), target))

	d := f.out.last(t)
	assert.Equal(t, events.EventTypeResumed, d.event.Type)

	var payload events.SyncPayload
	require.NoError(t, d.event.Decode(&payload))
	assert.True(t, f.clock.Now().Equal(payload.ServerTime))
	assert.True(t, target.Equal(payload.TargetTime))

	anchor, paused := f.coord.State("lobby")
	assert.False(t, paused)
	assert.True(t, target.Equal(anchor), "resume target becomes the new anchor")

	// A display registering after the resume lands on the same anchor
	f.connect(t, "c2", "patio")
	var reg events.RegisteredPayload
	require.NoError(t, f.out.last(t).event.Decode(&reg))
	assert.True(t, target.Equal(reg.Anchor))
	assert.False(t, reg.Paused)
}

func TestCoordinator_ResumeWithoutTarget(t *testing.T) {
	f := newFixture(t)

	err := f.coord.Resume(AllDisplays(), time.Time{})
	assert.ErrorIs(t, err, playback.ErrNoTargetTime)
	assert.Zero(t, f.out.count())

	err = f.coord.FullResync(AllDisplays(), time.Time{})
	assert.ErrorIs(t, err, playback.ErrNoTargetTime)
}

func TestCoordinator_TargetedCommands(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.coord.Pause(Displays("lobby")))
	d := f.out.last(t)
	assert.Equal(t, []string{"lobby"}, d.target.DisplayIDs)
	assert.Equal(t, "lobby", d.event.DisplayID)

	_, lobbyPaused := f.coord.State("lobby")
	_, patioPaused := f.coord.State("patio")
	assert.True(t, lobbyPaused)
	assert.False(t, patioPaused)

	target := start.Add(time.Hour)
	require.NoError(t, f.coord.FullResync(Displays("patio"), target))
	patioAnchor, _ := f.coord.State("patio")
	lobbyAnchor, _ := f.coord.State("lobby")
	assert.True(t, target.Equal(patioAnchor))
	assert.True(t, DefaultAnchor.Equal(lobbyAnchor))

	// Fleet wide commands replace per display state
	require.NoError(t, f.coord.Resume(AllDisplays(), target))
	_, lobbyPaused = f.coord.State("lobby")
	assert.False(t, lobbyPaused)
}

func TestCoordinator_PushContent(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, "c1", "lobby")

	updated, err := f.repo.GetDisplayByPublicID(context.Background(), "lobby")
	require.NoError(t, err)
	updated.IntervalMs = 9000
	updated.TransitionMode = models.TransitionModeNormal
	f.repo.PutDisplay(*updated)

	require.NoError(t, f.coord.PushContent(context.Background(), Displays("lobby")))

	last := f.out.last(t)
	assert.Equal(t, events.EventTypeContentUpdated, last.event.Type)
	assert.Equal(t, []string{"lobby"}, last.target.DisplayIDs)

	var payload events.ContentPayload
	require.NoError(t, last.event.Decode(&payload))
	assert.Equal(t, "lobby", payload.DisplayID)
	assert.Equal(t, 9000, payload.IntervalMs)

	reg, ok := f.registry.Lookup(conn)
	require.True(t, ok)
	assert.Equal(t, 9000, reg.IntervalMs, "registry keeps the latest display record")
}

func TestCoordinator_PushContentAllUsesRegisteredDisplays(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "lobby")
	f.connect(t, "c2", "patio")
	before := f.out.count()

	require.NoError(t, f.coord.PushContent(context.Background(), AllDisplays()))
	assert.Equal(t, before+2, f.out.count())
}

func TestCoordinator_PushContentFailure(t *testing.T) {
	f := newFixture(t)

	err := f.coord.PushContent(context.Background(), Displays("ghost"))
	require.Error(t, err)
	assert.ErrorIs(t, err, displays.ErrDisplayNotFound)

	last := f.out.last(t)
	assert.Equal(t, events.EventTypeUpdateFailed, last.event.Type)

	var payload events.FailurePayload
	require.NoError(t, last.event.Decode(&payload))
	assert.Equal(t, "ghost", payload.DisplayID)
	assert.NotEmpty(t, payload.Reason)
}

func TestCoordinator_Apply(t *testing.T) {
	target := start.Add(5 * time.Second)

	tests := []struct {
		name     string
		cmd      commands.Command
		wantType events.EventType
		wantErr  error
	}{
		{name: "pause", cmd: commands.Command{Type: commands.TypePause}, wantType: events.EventTypePaused},
		{name: "resume", cmd: commands.Command{Type: commands.TypeResume, TargetTime: target}, wantType: events.EventTypeResumed},
		{name: "resync", cmd: commands.Command{Type: commands.TypeFullResync, TargetTime: target}, wantType: events.EventTypeFullResync},
		{name: "push", cmd: commands.Command{Type: commands.TypePushContent, DisplayIDs: []string{"lobby"}}, wantType: events.EventTypeContentUpdated},
		{name: "resume without target", cmd: commands.Command{Type: commands.TypeResume}, wantErr: commands.ErrInvalidCommand},
		{name: "unknown", cmd: commands.Command{Type: "reboot"}, wantErr: commands.ErrInvalidCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.coord.Apply(context.Background(), tt.cmd)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, f.out.last(t).event.Type)
		})
	}
}

func TestCoordinator_SharedStateAcrossInstances(t *testing.T) {
	f := newFixture(t)
	store := NewMemoryStateStore()

	a := NewCoordinator(f.clock, displays.NewApp(f.repo), NewRegistry(), &recordingBroadcaster{}, WithStateStore(store))
	require.NoError(t, a.Restore(context.Background()))
	require.NoError(t, a.Pause(AllDisplays()))

	f.clock.Advance(90 * time.Second)

	registry := NewRegistry()
	out := &recordingBroadcaster{}
	b := NewCoordinator(f.clock, displays.NewApp(f.repo), registry, out, WithStateStore(store))
	require.NoError(t, b.Restore(context.Background()))

	conn := newTestConnection("c1")
	registry.Connect(conn)
	require.NoError(t, b.Register(context.Background(), conn, "lobby"))

	var payload events.RegisteredPayload
	require.NoError(t, out.last(t).event.Decode(&payload))
	assert.True(t, DefaultAnchor.Equal(payload.Anchor), "anchor is shared, not the second instance's start")
	assert.True(t, payload.Paused, "a restarted instance does not resume a paused fleet")

	// A targeted resume on b survives another restart
	target := f.clock.Now().Add(3 * time.Second)
	require.NoError(t, b.Resume(Displays("patio"), target))

	c := NewCoordinator(f.clock, displays.NewApp(f.repo), NewRegistry(), &recordingBroadcaster{}, WithStateStore(store))
	require.NoError(t, c.Restore(context.Background()))

	anchor, paused := c.State("patio")
	assert.True(t, target.Equal(anchor))
	assert.False(t, paused)
	_, paused = c.State("lobby")
	assert.True(t, paused)
}

func TestCoordinator_DefaultAnchorWithoutStore(t *testing.T) {
	f := newFixture(t)
	a := NewCoordinator(f.clock, displays.NewApp(f.repo), NewRegistry(), &recordingBroadcaster{})
	f.clock.Advance(90 * time.Second)
	b := NewCoordinator(f.clock, displays.NewApp(f.repo), NewRegistry(), &recordingBroadcaster{})

	anchorA, _ := a.State("lobby")
	anchorB, _ := b.State("lobby")
	assert.True(t, anchorA.Equal(anchorB))

	require.NoError(t, a.Restore(context.Background()), "restore without a store is a no-op")

	custom := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := NewCoordinator(f.clock, displays.NewApp(f.repo), NewRegistry(), &recordingBroadcaster{}, WithDefaultAnchor(custom))
	anchorC, _ := c.State("lobby")
	assert.True(t, custom.Equal(anchorC))
}

type failingStore struct{}

func (failingStore) Load(context.Context) (*FleetState, error) {
	return nil, errors.New("bucket unavailable")
}

func (failingStore) Save(context.Context, FleetState) error {
	return errors.New("bucket unavailable")
}

func TestCoordinator_StoreErrors(t *testing.T) {
	f := newFixture(t)
	coord := NewCoordinator(f.clock, displays.NewApp(f.repo), NewRegistry(), &recordingBroadcaster{}, WithStateStore(failingStore{}))

	assert.Error(t, coord.Restore(context.Background()))

	// Commands still apply locally when the store cannot be written
	require.NoError(t, coord.Pause(AllDisplays()))
	_, paused := coord.State("lobby")
	assert.True(t, paused)
}

func TestMemoryStateStore_CopiesOverrides(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)

	overrides := map[string]PlaybackState{"lobby": {Anchor: start, Paused: true}}
	require.NoError(t, store.Save(ctx, FleetState{Fleet: PlaybackState{Anchor: start}, Overrides: overrides}))
	overrides["patio"] = PlaybackState{}

	st, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Overrides, 1)
	assert.True(t, st.Overrides["lobby"].Paused)
}
