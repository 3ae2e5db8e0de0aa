package mqtt

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/okian/posemon/internal/domain/dedupe"
	"github.com/okian/posemon/internal/domain/model"
	"github.com/okian/posemon/internal/domain/types"
	"github.com/okian/posemon/pkg/logger"
	"github.com/okian/posemon/pkg/metrics"
)

// Ingestor accepts frames for processing. A redelivered frame is reported
// with dedupe.ErrDuplicate.
type Ingestor interface {
	Ingest(ctx context.Context, e model.FrameEvent) error
}

// Subscriber consumes JSON frames from <prefix>/sessions/+/frames.
type Subscriber struct {
	client   *Client
	prefix   string
	qos      byte
	ingestor Ingestor
	logger   logger.Logger
}

// NewSubscriber creates a Subscriber feeding ingestor.
func NewSubscriber(client *Client, prefix string, qos byte, ingestor Ingestor) *Subscriber {
	return &Subscriber{
		client:   client,
		prefix:   prefix,
		qos:      qos,
		ingestor: ingestor,
		logger:   logger.Get().Named("mqtt-subscriber"),
	}
}

// Start subscribes to the frame topics.
func (s *Subscriber) Start(ctx context.Context) error {
	return s.client.Subscribe(ctx, FramesFilter(s.prefix), s.qos, s.handle)
}

func (s *Subscriber) handle(ctx context.Context, topic string, payload []byte) {
	sessionID, ok := SessionFromTopic(s.prefix, topic)
	if !ok {
		metrics.RecordIngest("mqtt", "rejected")
		s.logger.Warn(ctx, "frame on unexpected topic", logger.String("topic", topic))
		return
	}

	var req types.FrameRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		metrics.RecordIngest("mqtt", "rejected")
		s.logger.Warn(ctx, "malformed frame payload", logger.String("topic", topic), logger.Error(err))
		return
	}
	event, err := req.ToFrameEvent(sessionID)
	if err != nil {
		metrics.RecordIngest("mqtt", "rejected")
		s.logger.Warn(ctx, "invalid frame", logger.String("topic", topic), logger.Error(err))
		return
	}

	switch err := s.ingestor.Ingest(ctx, event); {
	case err == nil:
		metrics.RecordIngest("mqtt", "accepted")
	case errors.Is(err, dedupe.ErrDuplicate):
		metrics.RecordIngest("mqtt", "duplicate")
	default:
		metrics.RecordIngest("mqtt", "rejected")
		s.logger.Error(ctx, "frame not ingested",
			logger.String("session_id", sessionID),
			logger.Uint64("seq", event.Seq),
			logger.Error(err),
		)
	}
}
