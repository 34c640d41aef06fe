package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/dataflow/executors"
	"github.com/BaSui01/dataflow/workflow"
)

// =============================================================================
// 📚 内置工作流
// =============================================================================

type workflowFactory func(logger *zap.Logger, opts ...workflow.RunOption) (*workflow.Workflow, error)

type builtin struct {
	build workflowFactory
	parse func(raw string) (any, error)
}

var builtins = map[string]builtin{
	executors.StatsWorkflowName: {build: executors.NewStatsWorkflow, parse: parseIntList},
	executors.TextWorkflowName:  {build: executors.NewTextWorkflow, parse: func(raw string) (any, error) { return raw, nil }},
}

// lookupWorkflow accepts the full workflow name or its short form ("stats").
func lookupWorkflow(name string) (string, builtin, error) {
	if b, ok := builtins[name]; ok {
		return name, b, nil
	}
	full := name + "_workflow"
	if b, ok := builtins[full]; ok {
		return full, b, nil
	}

	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, strings.TrimSuffix(n, "_workflow"))
	}
	sort.Strings(names)
	return "", builtin{}, fmt.Errorf("unknown workflow %q (available: %s)", name, strings.Join(names, ", "))
}

// parseIntList accepts "1,2,3" or a JSON array.
func parseIntList(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var out []int
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("invalid integer list: %w", err)
		}
		return out, nil
	}

	out := []int{}
	if raw == "" {
		return out, nil
	}
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// =============================================================================
// ▶️ run / resume 命令
// =============================================================================

func runWorkflow(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	name := fs.String("workflow", "stats", "Built-in workflow to run")
	input := fs.String("input", "", "Workflow input")
	configPath := fs.String("config", "", "Path to config file")
	metricsAddr := fs.String("metrics-addr", "", "Serve /metrics and /healthz on this address")
	verbose := fs.Bool("v", false, "Print every run event")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fullName, b, err := lookupWorkflow(*name)
	if err != nil {
		return err
	}
	payload, err := b.parse(*input)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, *configPath, *metricsAddr)
	if err != nil {
		return err
	}
	defer a.close()

	wf, opts, err := a.buildWorkflow(b)
	if err != nil {
		return err
	}

	runCtx, cancel := a.runContext(ctx)
	defer cancel()

	run, err := wf.RunStream(runCtx, payload, opts...)
	if err != nil {
		return fmt.Errorf("failed to start %s: %w", fullName, err)
	}
	return a.follow(run, cancel, *verbose, stdout)
}

func runResume(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		return errors.New("usage: dataflow resume <checkpoint-id> [--config <path>] [-v]")
	}
	checkpointID := args[0]

	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	metricsAddr := fs.String("metrics-addr", "", "Serve /metrics and /healthz on this address")
	verbose := fs.Bool("v", false, "Print every run event")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	a, err := newApp(ctx, *configPath, *metricsAddr)
	if err != nil {
		return err
	}
	defer a.close()

	cp, err := a.store.Load(ctx, checkpointID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint %s: %w", checkpointID, err)
	}
	_, b, err := lookupWorkflow(cp.WorkflowID)
	if err != nil {
		return err
	}

	wf, opts, err := a.buildWorkflow(b)
	if err != nil {
		return err
	}

	runCtx, cancel := a.runContext(ctx)
	defer cancel()

	run, err := wf.Resume(runCtx, checkpointID, a.store, opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Resuming %s from superstep %d\n", cp.WorkflowID, cp.SuperstepIndex)
	return a.follow(run, cancel, *verbose, stdout)
}

func (a *app) buildWorkflow(b builtin) (*workflow.Workflow, []workflow.RunOption, error) {
	opts, err := a.runOptions()
	if err != nil {
		return nil, nil, err
	}
	wf, err := b.build(a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build workflow: %w", err)
	}
	return wf, opts, nil
}

// follow streams run events until the run finishes. The first interrupt
// suspends the run, the second cancels it.
func (a *app) follow(run *workflow.Run, cancel context.CancelFunc, verbose bool, stdout io.Writer) error {
	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	go func() {
		for {
			select {
			case <-interrupts:
			case <-run.Done():
				return
			}
			if err := run.Suspend(); err != nil {
				a.logger.Info("cancelling run", zap.String("run_id", run.ID()), zap.Error(err))
				cancel()
				return
			}
			a.logger.Info("suspend requested, interrupt again to abort", zap.String("run_id", run.ID()))

			select {
			case <-interrupts:
				cancel()
			case <-run.Done():
			}
			return
		}
	}()

	for ev := range run.Events() {
		if verbose {
			fmt.Fprintln(stdout, formatEvent(ev))
		}
	}
	<-run.Done()

	return printOutcome(run, stdout)
}

func printOutcome(run *workflow.Run, stdout io.Writer) error {
	state := run.State()
	fmt.Fprintf(stdout, "Run %s %s\n", run.ID(), state)

	if out, ok := run.Output(); ok {
		fmt.Fprintf(stdout, "Output: %s\n", formatPayload(out))
	}
	if id := run.LastCheckpointID(); id != "" {
		fmt.Fprintf(stdout, "Last checkpoint: %s\n", id)
	}
	if state == workflow.RunFailed {
		return run.Err()
	}
	return nil
}

func formatEvent(ev workflow.Event) string {
	prefix := fmt.Sprintf("[%d] %-17s", ev.Superstep, ev.Type)
	switch ev.Type {
	case workflow.EventMessageDelivered:
		if ev.SourceID == "" {
			return fmt.Sprintf("%s %s <- input", prefix, ev.ExecutorID)
		}
		return fmt.Sprintf("%s %s <- %s", prefix, ev.ExecutorID, ev.SourceID)
	case workflow.EventExecutorEmitted:
		return fmt.Sprintf("%s %s %s %s", prefix, ev.ExecutorID, ev.Kind, formatPayload(ev.Payload))
	case workflow.EventOutputProduced:
		return fmt.Sprintf("%s %s", prefix, formatPayload(ev.Payload))
	case workflow.EventCheckpointSaved:
		return fmt.Sprintf("%s %s", prefix, ev.CheckpointID)
	case workflow.EventRunFailed:
		return fmt.Sprintf("%s %v", prefix, ev.Err)
	default:
		return prefix
	}
}

func formatPayload(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
