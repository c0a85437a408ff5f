package connect

import (
	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/cuebox/internal/domain/failure"
)

// toConnectError maps a failure class to an RPC code. The message is the
// user-facing one; details stay in the server log.
func toConnectError(err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, failure.ErrNotAuthenticated):
		code = connect.CodeUnauthenticated
	case errors.Is(err, failure.ErrNoDevice):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, failure.ErrRateLimited):
		code = connect.CodeResourceExhausted
	case errors.Is(err, failure.ErrDeviceActivationFailed),
		errors.Is(err, failure.ErrPlaybackCommandFailed),
		errors.Is(err, failure.ErrRecommendationFetchFailed):
		code = connect.CodeUnavailable
	default:
		code = connect.CodeInternal
	}
	logRPCError(err, code)
	return connect.NewError(code, errors.New(failure.Message(err)))
}
