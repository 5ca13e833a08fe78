package control

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls the control service
type Client struct {
	pause       *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	resume      *connect.Client[wrapperspb.StringValue, timestamppb.Timestamp]
	pushContent *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	fullResync  *connect.Client[wrapperspb.StringValue, timestamppb.Timestamp]
}

// NewClient creates a control client for the gateway at baseURL
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		pause:       connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+PauseProcedure, opts...),
		resume:      connect.NewClient[wrapperspb.StringValue, timestamppb.Timestamp](httpClient, baseURL+ResumeProcedure, opts...),
		pushContent: connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+PushContentProcedure, opts...),
		fullResync:  connect.NewClient[wrapperspb.StringValue, timestamppb.Timestamp](httpClient, baseURL+FullResyncProcedure, opts...),
	}
}

// Pause pauses the given displays, or all of them when none are given
func (c *Client) Pause(ctx context.Context, displayIDs ...string) error {
	_, err := c.pause.CallUnary(ctx, connect.NewRequest(targetOf(displayIDs)))
	return err
}

// Resume resumes the given displays and returns the instant they restart at
func (c *Client) Resume(ctx context.Context, displayIDs ...string) (time.Time, error) {
	res, err := c.resume.CallUnary(ctx, connect.NewRequest(targetOf(displayIDs)))
	if err != nil {
		return time.Time{}, err
	}
	return res.Msg.AsTime(), nil
}

// PushContent makes the given displays reload their content
func (c *Client) PushContent(ctx context.Context, displayIDs ...string) error {
	_, err := c.pushContent.CallUnary(ctx, connect.NewRequest(targetOf(displayIDs)))
	return err
}

// FullResync makes the given displays reload at a common instant
func (c *Client) FullResync(ctx context.Context, displayIDs ...string) (time.Time, error) {
	res, err := c.fullResync.CallUnary(ctx, connect.NewRequest(targetOf(displayIDs)))
	if err != nil {
		return time.Time{}, err
	}
	return res.Msg.AsTime(), nil
}

func targetOf(displayIDs []string) *wrapperspb.StringValue {
	return wrapperspb.String(strings.Join(displayIDs, ","))
}
