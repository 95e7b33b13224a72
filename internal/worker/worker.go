// Package worker implements the per-queue job handlers: note enrichment
// with its derivation sub-pipeline, task enrichment, and activity schema
// analysis. All three share the same skeleton: claim the entity under the
// idempotency guard, call the LLM port outside any transaction, then
// finalize atomically.
package worker

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/robolog/robolog/internal/broker"
	"github.com/robolog/robolog/internal/enqueue"
	"github.com/robolog/robolog/internal/llm"
	"github.com/robolog/robolog/internal/storage"
)

// Workers holds the dependencies shared by all handlers.
type Workers struct {
	store storage.Store
	port  llm.Port
	enq   *enqueue.Service
}

// New creates the handler set.
func New(store storage.Store, port llm.Port, enq *enqueue.Service) *Workers {
	return &Workers{store: store, port: port, enq: enq}
}

// Handlers maps each queue to its processing function, for the dispatcher.
func (w *Workers) Handlers() map[string]broker.HandlerFunc {
	return map[string]broker.HandlerFunc{
		broker.QueueNoteEnrichment: w.HandleNote,
		broker.QueueTaskEnrichment: w.HandleTask,
		broker.QueueActivitySchema: w.HandleActivity,
	}
}

// errBadPayload marks malformed job payloads. Redelivering the same bytes
// cannot help, so these fail terminally.
var errBadPayload = errors.New("worker: bad job payload")

// payloadID extracts the entity id from a job payload like {"note_id":7}.
func payloadID(payload, key string) (int64, error) {
	var fields map[string]int64
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return 0, fmt.Errorf("%w %q: %v", errBadPayload, payload, err)
	}
	id, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%w %q: no %s", errBadPayload, payload, key)
	}
	return id, nil
}

// IsRetryable tells the dispatcher which handler errors warrant broker-level
// redelivery. LLM failures carry their own classification. Entity-state
// sentinels and malformed payloads are terminal. Everything else a handler
// surfaces is a persistence failure (busy database, dropped connection),
// which a later delivery may well outlive.
func IsRetryable(err error) bool {
	if kind := llm.KindOf(err); kind != "" {
		return llm.IsRetryable(err)
	}
	switch {
	case errors.Is(err, errBadPayload),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrInvalidTransition),
		errors.Is(err, storage.ErrConflict),
		errors.Is(err, storage.ErrEmptyContent):
		return false
	}
	return true
}
