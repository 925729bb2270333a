package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/currency-converter/internal/domain"
)

var exchangeTransitions = map[string]map[string]struct{}{
	domain.StateValidating: {
		domain.StateWithdrawing: {},
	},
	domain.StateWithdrawing: {
		domain.StateDepositing: {},
	},
	domain.StateDepositing: {
		domain.StateCommitted:   {},
		domain.StateRollingBack: {},
	},
	domain.StateRollingBack: {
		domain.StateRolledBack:               {},
		domain.StateCorruptedRollbackFailure: {},
	},
	domain.StateCommitted:                {},
	domain.StateRolledBack:               {},
	domain.StateCorruptedRollbackFailure: {},
}

func canTransition(current, next string) bool {
	nextStates, ok := exchangeTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

func isTerminal(state string) bool {
	next, ok := exchangeTransitions[state]
	return ok && len(next) == 0
}

// exchangeRun tracks one operation through the engine states. It lives only
// for the duration of a single Perform call.
type exchangeRun struct {
	ctx   context.Context
	audit *AuditService
	kind  string
	seq   uint64
	state string
}

func newExchangeRun(ctx context.Context, audit *AuditService, kind string, seq uint64) *exchangeRun {
	return &exchangeRun{ctx: ctx, audit: audit, kind: kind, seq: seq, state: domain.StateValidating}
}

func (r *exchangeRun) transition(next, action string, cause error) error {
	if !canTransition(r.state, next) {
		return fmt.Errorf("invalid exchange state transition: %s -> %s", r.state, next)
	}
	prev := r.state
	r.state = next
	entry := AuditEntry{
		Operation:         r.kind,
		TransactionNumber: r.seq,
		Action:            action,
		PrevState:         prev,
		NextState:         next,
	}
	if cause != nil {
		entry.Detail = cause.Error()
	}
	r.audit.Write(r.ctx, entry)
	return nil
}
