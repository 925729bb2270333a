package service

import (
	"context"

	"go.uber.org/zap"
)

// AuditEntry is one immutable record of an engine state change.
type AuditEntry struct {
	Operation         string
	TransactionNumber uint64
	Action            string
	PrevState         string
	NextState         string
	Detail            string
}

// AuditService writes the audit trail of exchange state transitions.
type AuditService struct {
	logger *zap.Logger
}

func NewAuditService(logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.L()
	}
	return &AuditService{logger: logger.Named("audit")}
}

// Write stores a single immutable audit record.
func (s *AuditService) Write(ctx context.Context, entry AuditEntry) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.Uint64("transaction_number", entry.TransactionNumber),
		zap.String("action", entry.Action),
		zap.String("prev_state", entry.PrevState),
		zap.String("next_state", entry.NextState),
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	s.logger.Info("state transition", fields...)
}
