package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okian/posemon/internal/domain/types"
)

// Publisher is a display sink that publishes retained JSON updates, so a
// late subscriber immediately sees the current text of every session.
type Publisher struct {
	client *Client
	prefix string
	qos    byte
}

// NewPublisher creates a Publisher writing below prefix.
func NewPublisher(client *Client, prefix string, qos byte) *Publisher {
	return &Publisher{client: client, prefix: prefix, qos: qos}
}

// Name implements sink.Sink.
func (p *Publisher) Name() string { return "mqtt" }

// Publish implements sink.Sink. An ended session has its retained update
// cleared.
func (p *Publisher) Publish(ctx context.Context, u types.Update) error {
	if u.Status == types.UpdateEnded {
		return p.Clear(ctx, u.SessionID)
	}
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	return p.client.Publish(ctx, ActivityTopic(p.prefix, u.SessionID), p.qos, true, payload)
}

// Clear removes the retained update of a session that has ended.
func (p *Publisher) Clear(ctx context.Context, sessionID string) error {
	return p.client.Publish(ctx, ActivityTopic(p.prefix, sessionID), p.qos, true, nil)
}
