package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"
)

// PubSub publishes each record as JSON to a topic. Downstream consumers use
// it to pick up new images without polling the output directory.
type PubSub struct {
	topic *pubsub.Topic
}

// NewPubSub constructs a publisher for the given topic. A nil topic makes
// Record a no-op.
func NewPubSub(topic *pubsub.Topic) *PubSub {
	return &PubSub{topic: topic}
}

// Record publishes rec and waits for the server to acknowledge it
func (p *PubSub) Record(ctx context.Context, rec Record) error {
	if p.topic == nil {
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal transfer %s: %w", rec.ID, err)
	}

	_, err = p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"outcome":  rec.Outcome,
			"sequence": strconv.Itoa(rec.Sequence),
		},
	}).Get(ctx)
	if err != nil {
		return fmt.Errorf("publish transfer %s: %w", rec.ID, err)
	}
	return nil
}

// Stop flushes pending publishes
func (p *PubSub) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
