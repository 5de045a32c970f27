package ingest

import (
	"context"

	"ricevute/internal/amqp"
)

// HandleObjectFinalizedMessage adapts a queue delivery to the orchestrator.
// Implements the consumer's object handler.
func (o *Orchestrator) HandleObjectFinalizedMessage(ctx context.Context, msg *amqp.ObjectFinalizedMessage) error {
	if msg == nil {
		return nil
	}
	return o.HandleObjectFinalized(ctx, ObjectEvent{
		Bucket:      msg.Bucket,
		Name:        msg.Name,
		ContentType: msg.ContentType,
	})
}
