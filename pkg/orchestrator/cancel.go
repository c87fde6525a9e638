package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

// ErrAlreadyTerminal is returned by Cancel for a work item that is
// already Complete or Failed.
var ErrAlreadyTerminal = errors.New("orchestrator: work item is already terminal")

// Cancel implements user-initiated cancellation: marks the item
// terminal Failed with reason=user and asks its bound agent to stop at
// the next suspension point. The bound agent, if any, is unbound
// immediately; an in-flight Executor or
// Reviewer call observes the item's Failed state the next time it tries
// to report back and simply discards its result.
func (o *Orchestrator) Cancel(ctx context.Context, id ids.WorkItemId) error {
	wi, err := o.store.GetWorkItem(ctx, id)
	if err != nil {
		return newCoreError(KindStorage, id.String(), "loading work item for cancel", err)
	}
	if wi.State.Terminal() {
		return fmt.Errorf("%w: %s", ErrAlreadyTerminal, id)
	}

	if wi.AssignedAgent != nil {
		_ = o.registry.Unbind(*wi.AssignedAgent)
	}

	if err := o.queue.Mark(ctx, id, models.StateFailed); err != nil {
		return newCoreError(KindStorage, id.String(), "marking work item cancelled", err)
	}
	o.appendEvent(ctx, models.EventAgentFailed, agentOf(wi), id, models.AgentFailedPayload{
		Kind:   "cancelled",
		Reason: "user",
	})
	return nil
}


