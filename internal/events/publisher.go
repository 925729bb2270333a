package events

import (
	"context"

	"github.com/ayo6706/currency-converter/internal/models"
)

// Publisher announces committed receipts to interested parties.
type Publisher interface {
	PublishReceipt(ctx context.Context, receipt models.Receipt) error
}

// NopPublisher drops every receipt. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishReceipt(ctx context.Context, receipt models.Receipt) error {
	return nil
}
