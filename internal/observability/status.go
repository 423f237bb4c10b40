package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/rahul/agentlab/internal/workflow"
)

// Phase mirrors the workflow state shown on the live status line.
type Phase string

const (
	PhaseIdle      Phase = "IDLE"
	PhasePlanning  Phase = "PLANNING"
	PhaseExecuting Phase = "EXECUTING"
)

// RunStatus is the progress of the run this process is driving, as shown on
// the status line and by /healthz. Cursor is zero based; Total is zero until
// the plan exists.
type RunStatus struct {
	Phase     Phase     `json:"phase"`
	RunID     string    `json:"run_id,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Step      string    `json:"step,omitempty"`
	Cursor    int       `json:"cursor"`
	Total     int       `json:"total"`
	Heartbeat time.Time `json:"heartbeat"`
}

// Progress renders the step position as "2/5", or "" before planning ends.
func (s RunStatus) Progress() string {
	if s.Total == 0 {
		return ""
	}
	return fmt.Sprintf("%d/%d", s.Cursor+1, s.Total)
}

var (
	statusMu sync.RWMutex
	status   = RunStatus{Phase: PhaseIdle, Heartbeat: time.Now()}
)

// Track records the progress carried by a sequencer snapshot. Terminal
// snapshots reset the status to idle.
func Track(snap workflow.Snapshot) {
	statusMu.Lock()
	defer statusMu.Unlock()

	hb := status.Heartbeat
	switch snap.State {
	case workflow.StatePlanning:
		status = RunStatus{Phase: PhasePlanning, RunID: snap.RunID, Agent: snap.Agent, Step: snap.Task}
	case workflow.StateExecuting:
		status = RunStatus{Phase: PhaseExecuting, RunID: snap.RunID, Agent: snap.Agent, Cursor: snap.Cursor, Total: len(snap.Steps)}
		if snap.Cursor >= 0 && snap.Cursor < len(snap.Steps) {
			status.Step = snap.Steps[snap.Cursor]
		}
	default:
		status = RunStatus{Phase: PhaseIdle}
	}
	status.Heartbeat = hb
}

// Planning marks task as being planned. Decomposers call it because the
// sequencer reports no transition before the plan exists.
func Planning(task string) {
	statusMu.Lock()
	defer statusMu.Unlock()
	status = RunStatus{Phase: PhasePlanning, Step: task, Heartbeat: status.Heartbeat}
}

// Status returns a copy of the current run status.
func Status() RunStatus {
	statusMu.RLock()
	defer statusMu.RUnlock()
	return status
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	statusMu.Lock()
	defer statusMu.Unlock()
	status.Heartbeat = time.Now()
}
