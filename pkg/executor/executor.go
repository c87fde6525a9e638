// Package executor implements the Executor (C7): performs the work
// described by a work item's plan tasks, fanning parallelizable tasks
// out concurrently, and spawns namespace-inheriting sub-items.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/llmclient"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
	"github.com/mnemosyne-ai/mnemosyne/pkg/storage"
)

// SchemaExecuteStep is the fixed schema every execute_step LLM call is
// validated against.
const SchemaExecuteStep = "executor.execute_step"

// ErrSubItemNotDescendant is returned by SpawnSub when a dependency is
// not a descendant of the parent item: dependencies must be a subset of
// the parent's descendants.
var ErrSubItemNotDescendant = errors.New("executor: dependency is not a descendant of the parent item")

// WorkSubmitter is the narrow slice of pkg/workqueue.WorkQueue the
// Executor needs to enqueue sub-items.
type WorkSubmitter interface {
	Submit(ctx context.Context, spec models.Spec, priority int, namespace ids.Namespace, dependencies []ids.WorkItemId) (ids.WorkItemId, error)
}

// Executor is C7.
type Executor struct {
	store        storage.Storage
	llm          llmclient.LlmClient
	submitter    WorkSubmitter
	artifactRoot string
	maxParallel  int
}

// New constructs an Executor. artifactRoot is the directory file
// artifacts are written under; maxParallel bounds concurrent step
// execution within one Execute call (0 defaults to 4).
func New(store storage.Storage, llm llmclient.LlmClient, submitter WorkSubmitter, artifactRoot string, maxParallel int) *Executor {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &Executor{store: store, llm: llm, submitter: submitter, artifactRoot: artifactRoot, maxParallel: maxParallel}
}

// Execute implements execute(work_item, context_package) → ExecutorReport:
// runs wi.Spec.Tasks in dependency-respecting layers,
// fanning parallelizable tasks within a layer out via errgroup. Each
// task's file artifact is written directly under the artifact root; no
// event or Storage record of a side effect is made before it becomes
// visible. A task-level failure fails the whole report rather than
// partially committing later layers.
func (e *Executor) Execute(ctx context.Context, wi *models.WorkItem, pkg models.ContextPackage) models.ExecutorReport {
	tasks := wi.Spec.Tasks
	if len(tasks) == 0 {
		tasks = []models.PlanTask{{ID: "default", Description: wi.Spec.Intent, Parallelizable: false}}
	}

	layers, err := layerTasks(tasks)
	if err != nil {
		return models.ExecutorReport{WorkItemID: wi.ID, Status: models.ExecutionStatusFailed, Error: err.Error()}
	}

	var artifacts []models.Artifact
	for _, layer := range layers {
		layerArtifacts, err := e.runLayer(ctx, wi, pkg, layer)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return models.ExecutorReport{WorkItemID: wi.ID, Status: models.ExecutionStatusCancelled, Artifacts: artifacts, Error: err.Error()}
			}
			return models.ExecutorReport{WorkItemID: wi.ID, Status: models.ExecutionStatusFailed, Artifacts: artifacts, Error: err.Error()}
		}
		artifacts = append(artifacts, layerArtifacts...)
	}

	return models.ExecutorReport{WorkItemID: wi.ID, Status: models.ExecutionStatusCompleted, Artifacts: artifacts}
}

// runLayer executes every task in one dependency layer, in parallel if
// every task in the layer is marked Parallelizable, sequentially
// otherwise (a layer with a non-parallelizable task runs strictly
// one-at-a-time so ordering within it stays deterministic).
func (e *Executor) runLayer(ctx context.Context, wi *models.WorkItem, pkg models.ContextPackage, layer []indexedTask) ([]models.Artifact, error) {
	allParallel := true
	for _, t := range layer {
		if !t.task.Parallelizable {
			allParallel = false
			break
		}
	}

	if !allParallel {
		var out []models.Artifact
		for _, t := range layer {
			a, err := e.runStep(ctx, wi, pkg, t.idx, t.task)
			if err != nil {
				return out, err
			}
			out = append(out, a)
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)
	results := make([]models.Artifact, len(layer))
	for i, t := range layer {
		i, t := i, t
		g.Go(func() error {
			a, err := e.runStep(gctx, wi, pkg, t.idx, t.task)
			if err != nil {
				return err
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runStep performs one task's LLM-backed generation followed by its
// deterministic side effect, keyed by (work_item_id, step_idx) so a
// re-execution after crash recovery is idempotent: if the artifact
// already exists with identical content, the write is skipped.
func (e *Executor) runStep(ctx context.Context, wi *models.WorkItem, pkg models.ContextPackage, stepIdx int, task models.PlanTask) (models.Artifact, error) {
	content, err := e.generateStepContent(ctx, wi, pkg, task)
	if err != nil {
		return models.Artifact{}, fmt.Errorf("executor: step %d (%s): %w", stepIdx, task.ID, err)
	}

	artifact := models.Artifact{Kind: "file", Path: stepArtifactPath(wi.ID, stepIdx, task), Content: content}
	if err := e.writeFileArtifactIdempotent(artifact); err != nil {
		return models.Artifact{}, fmt.Errorf("executor: step %d (%s): %w", stepIdx, task.ID, err)
	}
	return artifact, nil
}

// generateStepContent calls the LlmClient for one task and returns its
// error unchanged. When no LlmClient is configured (tests exercising the
// fan-out/idempotency machinery without an LLM) it returns a
// deterministic placeholder instead.
func (e *Executor) generateStepContent(ctx context.Context, wi *models.WorkItem, pkg models.ContextPackage, task models.PlanTask) (string, error) {
	if e.llm == nil {
		return fmt.Sprintf("// generated for %s\n// %s\n", task.ID, task.Description), nil
	}
	out, err := e.llm.Call(ctx, "executor.execute_step", map[string]any{
		"intent":     wi.Spec.Intent,
		"task":       task.Description,
		"narrative":  pkg.Narrative,
		"skills":     pkg.Skills,
		"key_issues": pkg.KeyIssues,
	}, SchemaExecuteStep)
	if err != nil {
		return "", err
	}
	content, _ := out["content"].(string)
	return content, nil
}

func stepArtifactPath(workItemID ids.WorkItemId, stepIdx int, task models.PlanTask) string {
	name := task.ID
	if name == "" {
		name = fmt.Sprintf("step-%d", stepIdx)
	}
	return filepath.Join(workItemID.String(), fmt.Sprintf("%03d-%s.go", stepIdx, name))
}

// writeFileArtifactIdempotent writes a.Content under e.artifactRoot/a.Path
// unless a file already exists there with an identical content hash.
func (e *Executor) writeFileArtifactIdempotent(a models.Artifact) error {
	if e.artifactRoot == "" {
		return nil
	}
	full := filepath.Join(e.artifactRoot, a.Path)

	if existing, err := os.ReadFile(full); err == nil {
		if contentHash(existing) == contentHash([]byte(a.Content)) {
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(a.Content), 0o644)
}

func contentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// indexedTask pairs a PlanTask with its original position, so artifact
// paths stay stable regardless of layering order.
type indexedTask struct {
	idx  int
	task models.PlanTask
}

// layerTasks groups tasks into dependency-respecting layers (Kahn's
// algorithm): layer 0 has no unresolved DependsOn, layer N depends only
// on tasks in layers < N.
func layerTasks(tasks []models.PlanTask) ([][]indexedTask, error) {
	byID := make(map[string]int, len(tasks))
	for i, t := range tasks {
		byID[t.ID] = i
	}

	remaining := make(map[int][]string, len(tasks))
	for i, t := range tasks {
		remaining[i] = append([]string(nil), t.DependsOn...)
	}

	done := make(map[string]bool, len(tasks))
	var layers [][]indexedTask
	for len(done) < len(tasks) {
		var layer []indexedTask
		for i, t := range tasks {
			if done[t.ID] {
				continue
			}
			ready := true
			for _, dep := range remaining[i] {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, indexedTask{idx: i, task: t})
			}
		}
		if len(layer) == 0 {
			return nil, fmt.Errorf("executor: unresolved or cyclic task dependencies among %d remaining tasks", len(tasks)-len(done))
		}
		for _, it := range layer {
			done[it.task.ID] = true
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

// SpawnSub implements spawn_sub(parent_item, sub_spec, dependencies) →
// WorkItemId: the sub-item inherits the parent's namespace,
// every dependency must be a descendant of the parent, and the sub-item
// starts at Prompt/Pending like any other submission.
func (e *Executor) SpawnSub(ctx context.Context, parent *models.WorkItem, subSpec models.Spec, dependencies []ids.WorkItemId) (ids.WorkItemId, error) {
	for _, dep := range dependencies {
		isDescendant, err := e.isDescendant(ctx, dep, parent.ID)
		if err != nil {
			return ids.WorkItemId{}, err
		}
		if !isDescendant {
			return ids.WorkItemId{}, fmt.Errorf("%w: %s", ErrSubItemNotDescendant, dep)
		}
	}

	subID, err := e.submitter.Submit(ctx, subSpec, parent.Priority, parent.Namespace, dependencies)
	if err != nil {
		return ids.WorkItemId{}, err
	}

	sub, err := e.store.GetWorkItem(ctx, subID)
	if err != nil {
		return ids.WorkItemId{}, err
	}
	parentID := parent.ID
	sub.Parent = &parentID
	sub.UpdatedAt = time.Now()
	if err := e.store.UpdateWorkItem(ctx, sub); err != nil {
		return ids.WorkItemId{}, err
	}
	return subID, nil
}

// isDescendant walks candidate's Parent chain looking for ancestorID.
func (e *Executor) isDescendant(ctx context.Context, candidate, ancestorID ids.WorkItemId) (bool, error) {
	cur := candidate
	for i := 0; i < 64; i++ { // bounded walk, guards against a corrupted cycle
		if cur == ancestorID {
			return true, nil
		}
		wi, err := e.store.GetWorkItem(ctx, cur)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		if wi.Parent == nil {
			return false, nil
		}
		cur = *wi.Parent
	}
	return false, nil
}


