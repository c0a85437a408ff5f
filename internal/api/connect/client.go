package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the player service.
type Client struct {
	httpClient connect.HTTPClient
	baseURL    string
	opts       []connect.ClientOption
}

// NewClient creates a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		opts:       opts,
	}
}

// Call invokes a unary procedure. A nil msg sends an empty message.
func (c *Client) Call(ctx context.Context, procedure string, msg *structpb.Struct) (*structpb.Struct, error) {
	if msg == nil {
		msg = &structpb.Struct{}
	}
	client := connect.NewClient[structpb.Struct, structpb.Struct](c.httpClient, c.baseURL+procedure, c.opts...)
	res, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", procedure)
	}
	return res.Msg, nil
}

// Subscribe streams state snapshots to fn until ctx is done, the server
// closes the stream or fn returns an error.
func (c *Client) Subscribe(ctx context.Context, fn func(*structpb.Struct) error) error {
	client := connect.NewClient[structpb.Struct, structpb.Struct](c.httpClient, c.baseURL+SubscribeProcedure, c.opts...)
	stream, err := client.CallServerStream(ctx, connect.NewRequest(&structpb.Struct{}))
	if err != nil {
		return errors.Wrap(err, "subscribe")
	}
	defer stream.Close()

	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil && connect.CodeOf(err) != connect.CodeCanceled {
		return errors.Wrap(err, "subscribe")
	}
	return nil
}
