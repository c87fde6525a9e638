package orchestrator

import (
	"context"
	"fmt"
)

// Recover rediscovers the namespaces an earlier process instance was
// driving and runs one dispatch pass over them. It is meant to run once
// at serve startup, before the
// regular tick loop begins: any item left InProgress by the prior
// process has no agent bound in this process's fresh Registry, so the
// next OnTick's deadlock sweep requeues it to Pending within one
// activity-timeout window, with its original id, priority, and
// review_attempt intact (no new work_submitted event is appended).
func (o *Orchestrator) Recover(ctx context.Context) error {
	namespaces, err := o.store.ListActiveNamespaces(ctx)
	if err != nil {
		return newCoreError(KindStorage, "", "listing active namespaces for recovery", err)
	}
	for _, ns := range namespaces {
		o.trackNamespace(ns)
	}
	if err := o.Dispatch(ctx); err != nil {
		return fmt.Errorf("orchestrator: recover: %w", err)
	}
	return nil
}


