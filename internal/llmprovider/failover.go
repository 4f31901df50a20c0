package llmprovider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Failover tries each Provider in order, falling through to the next
// on error. Grounded on internal/agent/failover.go's provider-chain
// retry, adapted from "next provider on transient HTTP error" to the
// same shape applied across any Provider implementation.
type Failover struct {
	providers []Provider
	log       *slog.Logger
}

// NewFailover builds a Failover over providers in priority order.
// logger may be nil, in which case slog.Default() is used.
func NewFailover(logger *slog.Logger, providers ...Provider) *Failover {
	if logger == nil {
		logger = slog.Default()
	}
	return &Failover{providers: providers, log: logger}
}

func (f *Failover) Name() string {
	if len(f.providers) == 0 {
		return "failover(empty)"
	}
	return "failover(" + f.providers[0].Name() + "...)"
}

// Complete tries each provider in order, returning the first success.
// It returns the last error, wrapped with every prior attempt's error
// joined in, if all providers fail.
func (f *Failover) Complete(ctx context.Context, req Request) (Response, error) {
	if len(f.providers) == 0 {
		return Response{}, errors.New("llmprovider: no providers configured")
	}
	var errs []error
	for i, p := range f.providers {
		resp, err := p.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		f.log.Warn("provider failed, trying next", "provider", p.Name(), "attempt", i+1, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return Response{}, errors.Join(errs...)
}
