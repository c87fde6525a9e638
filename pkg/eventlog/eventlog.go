// Package eventlog implements the Event Log (C1): the append-only,
// durability-guaranteeing coordination stream every other component
// reads from and writes through.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
	"github.com/mnemosyne-ai/mnemosyne/pkg/storage"
)

// ErrDegraded is returned by Append once the log has entered degraded
// mode after exhausting its write retries: reads remain allowed, but
// writes are refused until the process restarts.
var ErrDegraded = errors.New("eventlog: degraded, writes refused")

// EventLog is the single-writer-per-process append-only log backed by a
// Storage capability, with exponential-backoff retry on write failure.
type EventLog struct {
	store         storage.Storage
	bus           *Bus
	retryBase     time.Duration
	retryCap      time.Duration
	retryAttempts int
	degraded      atomic.Bool
}

// New constructs an EventLog over store, fanning every successfully
// appended event out to bus.
func New(store storage.Storage, bus *Bus, retryBase, retryCap time.Duration, retryAttempts int) *EventLog {
	return &EventLog{
		store:         store,
		bus:           bus,
		retryBase:     retryBase,
		retryCap:      retryCap,
		retryAttempts: retryAttempts,
	}
}

// Append durably records an event before returning. On repeated Storage
// failure it retries with exponential backoff up to retryAttempts;
// exhausting them puts the log into degraded mode, after which every
// Append fails fast with ErrDegraded until the process restarts.
func (l *EventLog) Append(ctx context.Context, kind models.EventKind, agentID ids.AgentId, workItemID *ids.WorkItemId, payload map[string]any) (ids.EventId, error) {
	if l.degraded.Load() {
		return ids.EventId{}, ErrDegraded
	}

	ev := models.Event{
		EventID:    ids.NewEventId(),
		Timestamp:  time.Now().UTC(),
		Kind:       kind,
		AgentID:    agentID,
		WorkItemID: workItemID,
		Payload:    payload,
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.retryBase
	bo.MaxInterval = l.retryCap
	bo.MaxElapsedTime = 0
	bounded := backoff.WithMaxRetries(bo, uint64(l.retryAttempts))

	var eventID ids.EventId
	err := backoff.Retry(func() error {
		id, err := l.store.AppendEvent(ctx, ev)
		if err != nil {
			if !errors.Is(err, storage.ErrStorage) {
				return backoff.Permanent(err)
			}
			slog.Warn("event append failed, retrying", "kind", kind, "error", err)
			return err
		}
		eventID = id
		return nil
	}, bounded)

	if err != nil {
		if errors.Is(err, storage.ErrStorage) {
			l.degraded.Store(true)
			slog.Error("event log entering degraded mode after exhausting retries", "kind", kind, "error", err)
			return ids.EventId{}, fmt.Errorf("%w: %v", ErrDegraded, err)
		}
		return ids.EventId{}, err
	}

	if l.bus != nil {
		l.bus.Publish(ev)
	}
	return eventID, nil
}

// Degraded reports whether the log has stopped accepting writes.
func (l *EventLog) Degraded() bool { return l.degraded.Load() }

// Since returns every event appended after since, in commit order.
// A zero EventId returns the full log.
func (l *EventLog) Since(ctx context.Context, since ids.EventId, limit int) ([]models.Event, error) {
	events, err := l.store.EventsSince(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("eventlog: since: %w", err)
	}
	return events, nil
}

// Replay returns every event matching predicate, in commit order, for
// crash recovery. It re-reads the full log in
// bounded pages rather than holding it all in memory at once.
func (l *EventLog) Replay(ctx context.Context, predicate func(models.Event) bool) ([]models.Event, error) {
	const pageSize = 500
	var out []models.Event
	cursor := ids.EventId{}
	for {
		page, err := l.store.EventsSince(ctx, cursor, pageSize)
		if err != nil {
			return nil, fmt.Errorf("eventlog: replay: %w", err)
		}
		for _, ev := range page {
			if predicate == nil || predicate(ev) {
				out = append(out, ev)
			}
			cursor = ev.EventID
		}
		if len(page) < pageSize {
			break
		}
	}
	return out, nil
}


