package control

import (
	"context"
	"errors"
	"time"

	"connectrpc.com/connect"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/signage/go/internal/displays"
	"github.com/mcdev12/signage/go/internal/playback"
	"github.com/mcdev12/signage/go/internal/signage/commands"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Service implements the operator control RPCs. Each request carries a
// comma separated list of display public IDs; an empty list means all.
type Service struct {
	dispatcher Dispatcher
	clock      clockwork.Clock
	resumeLead time.Duration
}

// NewService creates a control service. Resume and resync targets are
// placed resumeLead after the moment the request is handled.
func NewService(dispatcher Dispatcher, clock clockwork.Clock, resumeLead time.Duration) *Service {
	return &Service{
		dispatcher: dispatcher,
		clock:      clock,
		resumeLead: resumeLead,
	}
}

// Pause stops the addressed displays immediately
func (s *Service) Pause(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[emptypb.Empty], error) {
	cmd := commands.New(commands.TypePause, commands.ParseDisplayIDs(req.Msg.GetValue()), s.clock.Now())
	if err := s.dispatch(ctx, cmd); err != nil {
		return nil, err
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Resume restarts the addressed displays in unison and returns the chosen target time
func (s *Service) Resume(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[timestamppb.Timestamp], error) {
	return s.sync(ctx, commands.TypeResume, req.Msg.GetValue())
}

// FullResync makes the addressed displays reload at a common instant
func (s *Service) FullResync(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[timestamppb.Timestamp], error) {
	return s.sync(ctx, commands.TypeFullResync, req.Msg.GetValue())
}

// PushContent reloads content for the addressed displays
func (s *Service) PushContent(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[emptypb.Empty], error) {
	cmd := commands.New(commands.TypePushContent, commands.ParseDisplayIDs(req.Msg.GetValue()), s.clock.Now())
	if err := s.dispatch(ctx, cmd); err != nil {
		return nil, err
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func (s *Service) sync(ctx context.Context, t commands.Type, ids string) (*connect.Response[timestamppb.Timestamp], error) {
	now := s.clock.Now()
	cmd := commands.New(t, commands.ParseDisplayIDs(ids), now)
	// One target for the whole fleet, so every gateway announces the same instant
	cmd.TargetTime = now.Add(s.resumeLead)

	if err := s.dispatch(ctx, cmd); err != nil {
		return nil, err
	}
	return connect.NewResponse(timestamppb.New(cmd.TargetTime)), nil
}

func (s *Service) dispatch(ctx context.Context, cmd commands.Command) error {
	if err := s.dispatcher.Dispatch(ctx, cmd); err != nil {
		log.Error().
			Err(err).
			Str("command_id", cmd.ID).
			Str("type", string(cmd.Type)).
			Strs("display_ids", cmd.DisplayIDs).
			Msg("failed to dispatch command")
		return toConnectError(err)
	}

	log.Info().
		Str("command_id", cmd.ID).
		Str("type", string(cmd.Type)).
		Strs("display_ids", cmd.DisplayIDs).
		Msg("command dispatched")
	return nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, commands.ErrInvalidCommand), errors.Is(err, playback.ErrNoTargetTime):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, displays.ErrDisplayNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
