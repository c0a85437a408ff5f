package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
)

const (
	// APITokenHeader is the header name for the control API token.
	APITokenHeader = "X-Api-Token"
)

// TokenInterceptor rejects calls without the configured API token. It
// covers unary calls and streams.
type TokenInterceptor struct {
	token string
}

// NewTokenInterceptor creates an interceptor checking token. An empty
// token admits every call.
func NewTokenInterceptor(token string) *TokenInterceptor {
	return &TokenInterceptor{token: token}
}

func (i *TokenInterceptor) valid(got string) bool {
	if i.token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(i.token)) == 1
}

// WrapUnary implements connect.Interceptor.
func (i *TokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			if i.token != "" {
				req.Header().Set(APITokenHeader, i.token)
			}
			return next(ctx, req)
		}
		if !i.valid(req.Header().Get(APITokenHeader)) {
			return nil, connect.NewError(connect.CodeUnauthenticated, nil)
		}
		return next(ctx, req)
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *TokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if i.token != "" {
			conn.RequestHeader().Set(APITokenHeader, i.token)
		}
		return conn
	}
}

// WrapStreamingHandler implements connect.Interceptor.
func (i *TokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if !i.valid(conn.RequestHeader().Get(APITokenHeader)) {
			return connect.NewError(connect.CodeUnauthenticated, nil)
		}
		return next(ctx, conn)
	}
}
