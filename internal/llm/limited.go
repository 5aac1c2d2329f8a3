package llm

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// limitedClient decorates a Client with a request-rate limiter and a
// correlation id attached to every call's logs, without touching the
// provider-specific Generate implementations themselves.
type limitedClient struct {
	inner   Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewRateLimited wraps inner so no more than ratePerSecond requests
// are issued per second, bursting up to burst. Every call is logged
// with a fresh correlation id so provider-level retry logs (see
// anthropic.go) can be tied back to the originating handler call.
func NewRateLimited(inner Client, ratePerSecond float64, burst int, logger zerolog.Logger) Client {
	return &limitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		logger:  logger.With().Str("component", "llm_rate_limiter").Logger(),
	}
}

func (c *limitedClient) Generate(ctx context.Context, req Request) (Response, error) {
	correlationID := uuid.NewString()
	log := c.logger.With().Str("correlation_id", correlationID).Logger()

	if err := c.limiter.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("rate limiter wait aborted")
		return Response{}, err
	}
	log.Debug().Str("provider", c.inner.Name()).Msg("dispatching LLM request")
	resp, err := c.inner.Generate(ctx, req)
	if err != nil {
		log.Warn().Err(err).Msg("LLM request failed")
	}
	return resp, err
}

func (c *limitedClient) Name() string { return c.inner.Name() }
