package control

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/signage/go/internal/displays"
	"github.com/mcdev12/signage/go/internal/signage/commands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	cmds []commands.Command
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, cmd commands.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.cmds = append(d.cmds, cmd)
	return nil
}

func (d *recordingDispatcher) last(t *testing.T) commands.Command {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.cmds)
	return d.cmds[len(d.cmds)-1]
}

var now = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestClient(t *testing.T, d Dispatcher) *Client {
	t.Helper()
	svc := NewService(d, clockwork.NewFakeClockAt(now), 3*time.Second)

	mux := http.NewServeMux()
	path, handler := NewHandler(svc)
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL)
}

func TestService_Resume(t *testing.T) {
	d := &recordingDispatcher{}
	client := newTestClient(t, d)

	target, err := client.Resume(context.Background(), "lobby", "bar")
	require.NoError(t, err)
	assert.True(t, now.Add(3*time.Second).Equal(target))

	cmd := d.last(t)
	assert.Equal(t, commands.TypeResume, cmd.Type)
	assert.Equal(t, []string{"lobby", "bar"}, cmd.DisplayIDs)
	assert.True(t, target.Equal(cmd.TargetTime))
	assert.True(t, now.Equal(cmd.IssuedAt))
	assert.NotEmpty(t, cmd.ID)
}

func TestService_FullResync(t *testing.T) {
	d := &recordingDispatcher{}
	client := newTestClient(t, d)

	target, err := client.FullResync(context.Background())
	require.NoError(t, err)

	cmd := d.last(t)
	assert.Equal(t, commands.TypeFullResync, cmd.Type)
	assert.Empty(t, cmd.DisplayIDs, "no IDs addresses every display")
	assert.True(t, target.Equal(cmd.TargetTime))
}

func TestService_PauseAndPush(t *testing.T) {
	d := &recordingDispatcher{}
	client := newTestClient(t, d)

	require.NoError(t, client.Pause(context.Background()))
	assert.Equal(t, commands.TypePause, d.last(t).Type)
	assert.True(t, d.last(t).TargetTime.IsZero())

	require.NoError(t, client.PushContent(context.Background(), "patio"))
	assert.Equal(t, commands.TypePushContent, d.last(t).Type)
	assert.Equal(t, []string{"patio"}, d.last(t).DisplayIDs)
}

func TestService_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code connect.Code
	}{
		{name: "not found", err: fmt.Errorf("push: %w", displays.ErrDisplayNotFound), code: connect.CodeNotFound},
		{name: "invalid", err: commands.ErrInvalidCommand, code: connect.CodeInvalidArgument},
		{name: "joined", err: errors.Join(errors.New("x"), displays.ErrDisplayNotFound), code: connect.CodeNotFound},
		{name: "other", err: errors.New("nats: no responders"), code: connect.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, &recordingDispatcher{err: tt.err})
			err := client.PushContent(context.Background(), "lobby")
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
		})
	}
}

type applierFunc func(ctx context.Context, cmd commands.Command) error

func (f applierFunc) Apply(ctx context.Context, cmd commands.Command) error { return f(ctx, cmd) }

type publisherFunc func(ctx context.Context, cmd commands.Command) error

func (f publisherFunc) Publish(ctx context.Context, cmd commands.Command) error { return f(ctx, cmd) }

func TestDispatchers(t *testing.T) {
	cmd := commands.New(commands.TypePause, nil, now)

	var applied, published []string
	local := NewLocalDispatcher(applierFunc(func(_ context.Context, c commands.Command) error {
		applied = append(applied, c.ID)
		return nil
	}))
	stream := NewStreamDispatcher(publisherFunc(func(_ context.Context, c commands.Command) error {
		published = append(published, c.ID)
		return nil
	}))

	require.NoError(t, local.Dispatch(context.Background(), cmd))
	require.NoError(t, stream.Dispatch(context.Background(), cmd))
	assert.Equal(t, []string{cmd.ID}, applied)
	assert.Equal(t, []string{cmd.ID}, published)
}
