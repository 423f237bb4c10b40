package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rahul/agentlab/internal/agent"
	"github.com/rahul/agentlab/internal/store"
	"github.com/rahul/agentlab/internal/workflow"
)

var (
	heading = color.New(color.FgHiCyan, color.Bold)
	faint   = color.New(color.FgHiBlack)
	failure = color.New(color.FgHiRed)
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Plan a task and execute every step",
	Long: `Decompose the task into a short ordered plan, execute each step in
order and print the result of the last step.

With --agent vacation-house the task is a vacation house request and the
plan is the fixed five step search instead of a model-made one.

The run is checkpointed after every step. If it is interrupted, continue it
with 'agentlab resume <run-id>'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

var runAgent string

func init() {
	runCmd.Flags().StringVarP(&runAgent, "agent", "a", agent.DefaultAgent, "Sequenced agent to run: plan-execute or vacation-house")
}

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Continue an interrupted run from its checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runTask(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	seq, err := a.sequencerFor(runAgent)
	if err != nil {
		return err
	}
	run, err := agent.NewPlanExecute(seq, a.active).Start(ctx, strings.Join(args, " "))
	if run != nil {
		printRun(run.Snapshot())
	}
	return err
}

func runResume(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	snap, err := a.checkpoints.Load(ctx, args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no run with id %s", args[0])
	}
	if err != nil {
		return err
	}
	if snap.State.Terminal() {
		printRun(snap)
		return nil
	}

	seq, err := a.sequencerFor(snap.Agent)
	if err != nil {
		return err
	}

	a.active.Begin(snap.RunID)
	defer a.active.End(snap.RunID)

	run, err := seq.Resume(ctx, snap)
	if run != nil {
		printRun(run.Snapshot())
	}
	return err
}

func printRun(snap workflow.Snapshot) {
	heading.Printf("Run %s ", snap.RunID)
	faint.Printf("[%s]\n", snap.State)
	fmt.Printf("Task: %s\n\n", snap.Task)
	for i, step := range snap.Steps {
		marker := " "
		if i < snap.Cursor || snap.State == workflow.StateDone {
			marker = "✓"
		}
		fmt.Printf("  %s %d. %s\n", marker, i+1, step)
	}
	if snap.Error != "" {
		failure.Printf("\nError: %s\n", snap.Error)
	}
	if snap.Result != "" {
		heading.Println("\nResult")
		fmt.Println(snap.Result)
	}
}
