package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BaSui01/dataflow/persistence"
)

// =============================================================================
// 💾 checkpoints 命令
// =============================================================================

func runCheckpoints(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return errors.New("usage: dataflow checkpoints <list|show|delete> [options]")
	}
	action, rest := args[0], args[1:]

	var target string
	if action == "show" || action == "delete" {
		if len(rest) < 1 || strings.HasPrefix(rest[0], "-") {
			return fmt.Errorf("usage: dataflow checkpoints %s <checkpoint-id>", action)
		}
		target, rest = rest[0], rest[1:]
	}

	fs := flag.NewFlagSet("checkpoints "+action, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	name := fs.String("workflow", "", "Only list checkpoints of this workflow")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	a, err := newApp(ctx, *configPath, "")
	if err != nil {
		return err
	}
	defer a.close()

	switch action {
	case "list":
		workflowID := *name
		if workflowID != "" {
			if full, _, err := lookupWorkflow(workflowID); err == nil {
				workflowID = full
			}
		}
		return a.listCheckpoints(ctx, workflowID, stdout)
	case "show":
		cp, err := a.store.Load(ctx, target)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint %s: %w", target, err)
		}
		raw, err := json.MarshalIndent(cp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode checkpoint: %w", err)
		}
		fmt.Fprintln(stdout, string(raw))
		return nil
	case "delete":
		deleted, err := a.store.Delete(ctx, target)
		if err != nil {
			return fmt.Errorf("failed to delete checkpoint %s: %w", target, err)
		}
		if !deleted {
			fmt.Fprintf(stdout, "Checkpoint %s not found\n", target)
			return nil
		}
		fmt.Fprintf(stdout, "Deleted checkpoint %s\n", target)
		return nil
	default:
		return fmt.Errorf("unknown checkpoints subcommand: %s", action)
	}
}

func (a *app) listCheckpoints(ctx context.Context, workflowID string, stdout io.Writer) error {
	cps, err := persistence.ListCheckpoints(ctx, a.store, workflowID)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	if len(cps) == 0 {
		fmt.Fprintln(stdout, "No checkpoints found.")
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWORKFLOW\tSUPERSTEP\tPENDING\tRUN\tCREATED")
	for _, cp := range cps {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			cp.ID, cp.WorkflowID, cp.SuperstepIndex, len(cp.PendingMessages),
			cp.RunID(), cp.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
