package middleware

import (
	"context"

	"github.com/MrEthical07/authcore/replay"
	"github.com/MrEthical07/authcore/router"
)

// ReplayChecker validates a replay header. *replay.Guard implements it.
type ReplayChecker interface {
	Check(ctx context.Context, header string) error
}

// Replay rejects requests whose signed nonce is missing, wrong or reused.
func Replay(guard ReplayChecker) router.Step {
	return func(r *router.Request) (*router.Response, error) {
		if err := guard.Check(r.Context(), r.Header.Get(replay.Header)); err != nil {
			return nil, err
		}
		return nil, nil
	}
}
