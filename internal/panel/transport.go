package panel

import (
	"context"

	"github.com/dokzlo13/lightpanel/internal/ledger"
)

// MessageRef identifies a message in a chat
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Transport delivers panel messages to a chat.
// Edit returns ErrNotModified or ErrNotFound (wrapped) for the two benign rejections.
type Transport interface {
	Send(ctx context.Context, chatID int64, payload Payload) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, payload Payload) error
	Delete(ctx context.Context, ref MessageRef) error
}

// Journal records panel lifecycle and applied actions
type Journal interface {
	Append(ctx context.Context, eventType ledger.EventType, chatID int64, sessionID string, payload map[string]any) error
}

type nopJournal struct{}

func (nopJournal) Append(context.Context, ledger.EventType, int64, string, map[string]any) error {
	return nil
}
