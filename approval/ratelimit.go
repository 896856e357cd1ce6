package approval

import (
	"context"

	"github.com/workspace/agentcore/protocol"
	"golang.org/x/time/rate"
)

// RateLimited wraps a Service that proxies to a slow human-facing channel
// (a paging system, a chat prompt) so a misbehaving or adversarial child
// cannot flood it with can_use_tool requests. Requests beyond the limiter's
// burst block until a token is available or ctx is cancelled.
type RateLimited struct {
	next    Service
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token-bucket limiter allowing
// perSecond decisions per second with the given burst.
func NewRateLimited(next Service, perSecond float64, burst int) *RateLimited {
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Decide(ctx context.Context, req Request) protocol.Outcome {
	if err := r.limiter.Wait(ctx); err != nil {
		return protocol.Deny("approval rate limit wait cancelled: "+err.Error(), false)
	}
	return r.next.Decide(ctx, req)
}
