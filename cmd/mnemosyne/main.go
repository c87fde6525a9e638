// Command mnemosyne is the minimal CLI surface over the orchestration
// core: serve starts the core (and its optional HTTP+SSE surface),
// submit/status drive it, and doctor inspects the cross-process
// coordination directory. Argument parsing beyond that is intentionally
// out of scope — this is thin wiring over pkg/orchestrator, pkg/storage,
// and pkg/coordination, using plain flag.Parse per subcommand rather
// than a CLI framework.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mnemosyne-ai/mnemosyne/pkg/api"
	"github.com/mnemosyne-ai/mnemosyne/pkg/config"
	"github.com/mnemosyne-ai/mnemosyne/pkg/coordination"
	"github.com/mnemosyne-ai/mnemosyne/pkg/eventlog"
	"github.com/mnemosyne-ai/mnemosyne/pkg/executor"
	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/llmclient"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
	"github.com/mnemosyne-ai/mnemosyne/pkg/optimizer"
	"github.com/mnemosyne-ai/mnemosyne/pkg/orchestrator"
	"github.com/mnemosyne-ai/mnemosyne/pkg/registry"
	"github.com/mnemosyne-ai/mnemosyne/pkg/reviewer"
	"github.com/mnemosyne-ai/mnemosyne/pkg/storage"
	"github.com/mnemosyne-ai/mnemosyne/pkg/workqueue"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "submit":
		err = runSubmit(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "doctor":
		err = runDoctor(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "mnemosyne:", err)
	switch {
	case errors.Is(err, errInvalidArgs):
		os.Exit(1)
	case errors.Is(err, errCoreUnavailable):
		os.Exit(2)
	case errors.Is(err, errItemFailed):
		os.Exit(3)
	default:
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: mnemosyne <command> [flags]

commands:
  serve                 start the orchestration core and optional HTTP+SSE surface
  submit <intent>        submit a work item
  status [<id>]          print work item state(s)
  doctor [--fix]         report (and optionally remove) stale cross-process entries`)
}

var (
	errInvalidArgs     = fmt.Errorf("invalid arguments")
	errCoreUnavailable = fmt.Errorf("core unavailable")
	errItemFailed      = fmt.Errorf("work item failed")
)

// core bundles every component the CLI needs to talk to, constructed
// identically whether the caller is serve or a one-shot submit/status/
// doctor invocation, so an embedded CLI session observes exactly the
// state a running serve process would persist: instances share storage
// and the coordination directory, never in-memory state.
type core struct {
	cfg    *config.Config
	store  *storage.SQLite
	bus    *eventlog.Bus
	log    *eventlog.EventLog
	queue  *workqueue.WorkQueue
	reg    *registry.Registry
	orch   *orchestrator.Orchestrator
	coord  *coordination.Dir
	instID ids.InstanceId
}

func newCore(ctx context.Context) (*core, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	store, err := storage.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	bus := eventlog.NewBus()
	elog := eventlog.New(store, bus, cfg.StorageRetryBase, cfg.StorageRetryCap, cfg.StorageRetryAttempts)
	queue := workqueue.New(store, cfg.MaxReviewAttempts)
	reg := registry.New()

	schemas := llmclient.NewSchemaRegistry()
	if err := llmclient.RegisterDefaultSchemas(schemas); err != nil {
		return nil, fmt.Errorf("registering llm schemas: %w", err)
	}
	llm := llmclient.NewAnthropicClient(cfg.LlmAPIKey, cfg.LlmModel, cfg.LlmInnerDeadline, schemas)

	var budgetShares map[models.BudgetBucket]float64
	if len(cfg.BudgetShares) > 0 {
		budgetShares = make(map[models.BudgetBucket]float64, len(cfg.BudgetShares))
		for k, v := range cfg.BudgetShares {
			budgetShares[models.BudgetBucket(k)] = v
		}
	}
	opt := optimizer.New(store, llm, elog, optimizer.DirCatalog{Root: cfg.SkillsDir}, cfg.MaxSkills, budgetShares)
	exec := executor.New(store, llm, queue, cfg.ArtifactRoot, cfg.MaxParallelSteps)
	rev := reviewer.New(llm)

	orch := orchestrator.New(store, queue, reg, elog, opt, exec, rev, cfg.ActivityTimeout, cfg.PhaseTimeoutMultipliers)

	coord, err := coordination.New(cfg.CoordDir, []byte(cfg.SharedSecret))
	if err != nil {
		return nil, fmt.Errorf("opening coordination directory: %w", err)
	}

	return &core{
		cfg:    cfg,
		store:  store,
		bus:    bus,
		log:    elog,
		queue:  queue,
		reg:    reg,
		orch:   orch,
		coord:  coord,
		instID: ids.NewInstanceId(),
	}, nil
}

func (c *core) close() {
	if err := c.store.Close(); err != nil {
		slog.Error("closing storage", "error", err)
	}
}

// registerAgents registers one Idle agent of each of the three
// dispatchable roles (Optimizer, Reviewer, Executor — the Orchestrator
// itself has no registry entry, it IS the dispatcher) so Dispatch/OnTick
// always has something to pair ready work with.
func (c *core) registerAgents() {
	c.reg.Register(models.RoleOptimizer, []string{"memory_recall", "skill_discovery"})
	c.reg.Register(models.RoleExecutor, []string{"file_write", "memory_write"})
	c.reg.Register(models.RoleReviewer, []string{"quality_gates"})
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return errInvalidArgs
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newCore(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", errCoreUnavailable, err)
	}
	defer c.close()
	c.registerAgents()

	entry := coordination.ProcessEntry{
		InstanceID:    c.instID,
		PID:           os.Getpid(),
		StartedAt:     time.Now().UTC(),
		LastHeartbeat: time.Now().UTC(),
	}
	if err := c.coord.RegisterProcess(ctx, entry); err != nil {
		slog.Warn("serve: registering process entry failed", "error", err)
	}

	if err := c.orch.Recover(ctx); err != nil {
		slog.Warn("serve: recovery pass failed", "error", err)
	}

	var apiPort int
	if c.cfg.APIAddr != "" {
		srv := api.New(c.instID, c.store, c.orch, c.log, c.bus)
		preferred := portFromAddr(c.cfg.APIAddr)
		if p, ok := srv.Start(preferred); ok {
			apiPort = p
			entry.APIPort = p
			if err := c.coord.RegisterProcess(ctx, entry); err != nil {
				slog.Warn("serve: updating process entry with api port failed", "error", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.GracefulShutdownTimeout)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}
	}
	slog.Info("serve: started", "instance_id", c.instID.String(), "api_port", apiPort)

	dispatchTicker := time.NewTicker(c.cfg.DispatchInterval)
	defer dispatchTicker.Stop()
	tickTicker := time.NewTicker(c.cfg.StaleSweepInterval)
	defer tickTicker.Stop()
	heartbeatTicker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return gracefulShutdown(c)
		case <-dispatchTicker.C:
			if err := c.orch.OnTick(ctx); err != nil {
				slog.Warn("serve: on_tick failed", "error", err)
			}
			if err := c.orch.Dispatch(ctx); err != nil {
				slog.Warn("serve: dispatch pass failed", "error", err)
			}
		case <-tickTicker.C:
			if n, err := c.coord.SweepStale(ctx); err != nil {
				slog.Warn("serve: coordination sweep failed", "error", err)
			} else if n > 0 {
				slog.Info("serve: swept stale process entries", "count", n)
			}
		case <-heartbeatTicker.C:
			if err := c.coord.Heartbeat(ctx, c.instID); err != nil {
				slog.Warn("serve: heartbeat failed", "error", err)
			}
			// The in-process agents from registerAgents refresh their
			// last_heartbeat on the same tick.
			for _, a := range c.reg.ListAlive("") {
				_ = c.reg.Heartbeat(a.ID)
			}
		}
	}
}

// gracefulShutdown runs once the caller has left the select loop, so no
// further dispatch pass starts; Dispatch runs inside that loop, so none
// is in flight here. It releases the coordination entry under a
// GracefulShutdownTimeout deadline and does nothing else: it does not
// flush the event log (each Append has already written through Storage
// when it returns) and does not mark registered agents Idle. The HTTP
// server, if started, is shut down by runServe's deferred call.
func gracefulShutdown(c *core) error {
	slog.Info("serve: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.GracefulShutdownTimeout)
	defer cancel()
	if err := c.coord.Deregister(ctx, c.instID); err != nil {
		slog.Warn("serve: deregistering process entry failed", "error", err)
	}
	return nil
}

func portFromAddr(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 3000
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil || port == 0 {
		return 3000
	}
	return port
}

func runSubmit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	namespace := fs.String("n", "global", "namespace (session:<project>:<session_id> | project:<name> | global)")
	priority := fs.Int("p", 0, "priority (0 = highest)")
	var deps stringList
	fs.Var(&deps, "depends", "dependency work item id (repeatable)")
	if err := fs.Parse(args); err != nil {
		return errInvalidArgs
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: mnemosyne submit <intent> [-n namespace] [-p priority] [--depends <id>]...")
		return errInvalidArgs
	}
	intent := fs.Arg(0)

	ns, err := ids.ParseNamespace(*namespace)
	if err != nil {
		return fmt.Errorf("%w: invalid namespace: %v", errInvalidArgs, err)
	}
	var dependencies []ids.WorkItemId
	for _, d := range deps {
		id, err := ids.ParseWorkItemId(d)
		if err != nil {
			return fmt.Errorf("%w: invalid dependency id %q: %v", errInvalidArgs, d, err)
		}
		dependencies = append(dependencies, id)
	}

	ctx := context.Background()
	c, err := newCore(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", errCoreUnavailable, err)
	}
	defer c.close()
	c.registerAgents()

	id, err := c.orch.HandleSubmit(ctx, models.Spec{Intent: intent}, *priority, ns, dependencies)
	if err != nil {
		return err
	}
	fmt.Println(id.String())
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return errInvalidArgs
	}

	ctx := context.Background()
	c, err := newCore(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", errCoreUnavailable, err)
	}
	defer c.close()

	if fs.NArg() == 0 {
		return printAllStatuses(ctx, c)
	}

	id, err := ids.ParseWorkItemId(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("%w: invalid work item id: %v", errInvalidArgs, err)
	}
	wi, err := c.store.GetWorkItem(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", errCoreUnavailable, err)
	}
	printStatus(wi)
	if wi.State == models.StateFailed {
		return errItemFailed
	}
	return nil
}

func printAllStatuses(ctx context.Context, c *core) error {
	namespaces, err := c.store.ListActiveNamespaces(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", errCoreUnavailable, err)
	}
	anyFailed := false
	for _, ns := range namespaces {
		items, err := c.store.ListWorkItems(ctx, ns, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", errCoreUnavailable, err)
		}
		for _, wi := range items {
			printStatus(wi)
			anyFailed = anyFailed || wi.State == models.StateFailed
		}
	}
	if anyFailed {
		return errItemFailed
	}
	return nil
}

func printStatus(wi models.WorkItem) {
	assigned := "-"
	if wi.AssignedAgent != nil {
		assigned = wi.AssignedAgent.String()
	}
	fmt.Printf("%s  phase=%-10s state=%-12s review_attempt=%d assigned_agent=%s\n",
		wi.ID, wi.Phase, wi.State, wi.ReviewAttempt, assigned)
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fix := fs.Bool("fix", false, "remove stale cross-process entries")
	if err := fs.Parse(args); err != nil {
		return errInvalidArgs
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%w: %v", errCoreUnavailable, err)
	}
	coord, err := coordination.New(cfg.CoordDir, []byte(cfg.SharedSecret))
	if err != nil {
		return fmt.Errorf("%w: %v", errCoreUnavailable, err)
	}

	ctx := context.Background()
	alive, err := coord.ListAlive(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", errCoreUnavailable, err)
	}
	fmt.Printf("%d live process entries under %s\n", len(alive), cfg.CoordDir)
	for _, e := range alive {
		fmt.Printf("  %s  pid=%d  api_port=%d  last_heartbeat=%s\n", e.InstanceID, e.PID, e.APIPort, e.LastHeartbeat.Format(time.RFC3339))
	}

	if *fix {
		n, err := coord.SweepStale(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", errCoreUnavailable, err)
		}
		fmt.Printf("removed %d stale entries\n", n)
	}
	return nil
}

// stringList implements flag.Value, collecting repeated --depends flags.
type stringList []string

func (s *stringList) String() string { return fmt.Sprint(*s) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}


