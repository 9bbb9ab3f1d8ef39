package projection

import (
	"context"
	"encoding/json"
)

// InlinePublisher projects events synchronously inside the writing process.
// It stands in for the bus when the API runs without Kafka.
type InlinePublisher struct {
	projector *Projector
}

func NewInlinePublisher(projector *Projector) *InlinePublisher {
	return &InlinePublisher{projector: projector}
}

func (p *InlinePublisher) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.projector.HandleEvent(ctx, []byte(key), data)
}
