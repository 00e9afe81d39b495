// Package events publishes run completion events for downstream consumers
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/qtlcandidateload/pkg/kafka"
	"github.com/Ramsey-B/qtlcandidateload/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

const EventRelationshipsReloaded = "relationships.reloaded"

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishJobEvent(ctx context.Context, event *kafka.JobEvent) error
}

// Reload summarises a successful replace of the job's relationships.
type Reload struct {
	Table       string `json:"table"`
	CategoryKey int    `json:"category_key"`
	Deleted     int64  `json:"deleted"`
	Loaded      int    `json:"loaded"`
	MaxKey      int64  `json:"max_key"`
}

type Emitter struct {
	publisher Publisher
	job       string
	logger    ectologger.Logger
}

func NewEmitter(publisher Publisher, job string, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		job:       job,
		logger:    logger,
	}
}

// EmitRelationshipsReloaded publishes a relationships.reloaded event.
func (e *Emitter) EmitRelationshipsReloaded(ctx context.Context, runID string, reload Reload, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRelationshipsReloaded")
	defer span.End()

	data := map[string]any{
		"schema_version": SchemaVersion,
		"reload":         reload,
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return err
	}

	event := &kafka.JobEvent{
		EventType: EventRelationshipsReloaded,
		Job:       e.job,
		RunID:     runID,
		Data:      dataJSON,
		Timestamp: at.UTC(),
	}

	if err := e.publisher.PublishJobEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit relationships.reloaded event")
		return err
	}

	return nil
}
