package table

import (
	"context"
	"log"
	"time"

	"ratscramble.ai/internal/protocol"
	"ratscramble.ai/internal/sim/game"
)

// Agent is the capability interface for one decision agent. The table never
// inspects reasoning; it only validates the returned action.
type Agent interface {
	RequestAction(ctx context.Context, req protocol.ActionRequestMsg) (protocol.Action, error)
}

// RefereeAgent produces free-text rulings at phase transitions.
type RefereeAgent interface {
	RequestRuling(ctx context.Context, req protocol.RulingRequestMsg) ([]string, error)
}

// Gateway wraps one logical "ask agent for next action" call with a per-call
// timeout, bounded retries with backoff, and forfeit on exhaustion. It is
// the only place a phase may suspend.
type Gateway struct {
	timeout time.Duration
	retries int
	backoff []time.Duration
	logger  *log.Logger
}

func NewGateway(cfg game.Config, logger *log.Logger) *Gateway {
	backoff := make([]time.Duration, 0, len(cfg.RetryBackoffSeconds))
	for _, s := range cfg.RetryBackoffSeconds {
		backoff = append(backoff, time.Duration(s*float64(time.Second)))
	}
	if len(backoff) == 0 {
		backoff = []time.Duration{time.Second}
	}
	return &Gateway{
		timeout: time.Duration(cfg.RequestTimeoutSeconds * float64(time.Second)),
		retries: cfg.RequestRetries,
		backoff: backoff,
		logger:  logger,
	}
}

// Request returns the agent's action, or forfeit=true once the timeout and
// retry budget is exhausted or the phase context is canceled. A forfeit is
// always a plain no-action, never an error.
func (g *Gateway) Request(ctx context.Context, agent Agent, req protocol.ActionRequestMsg) (protocol.Action, bool) {
	if agent == nil {
		return noAction(), true
	}
	for attempt := 0; attempt <= g.retries; attempt++ {
		if ctx.Err() != nil {
			return noAction(), true
		}
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		act, err := agent.RequestAction(callCtx, req)
		cancel()
		if err == nil {
			return act, false
		}
		if ctx.Err() != nil {
			// Phase canceled: no point retrying.
			return noAction(), true
		}
		if g.logger != nil {
			g.logger.Printf("agent %s attempt %d/%d failed: %v", req.Character, attempt+1, g.retries+1, err)
		}
		if attempt < g.retries {
			wait := g.backoff[min(attempt, len(g.backoff)-1)]
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return noAction(), true
			}
		}
	}
	return noAction(), true
}

func noAction() protocol.Action {
	return protocol.Action{Kind: protocol.ActNoAction}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
