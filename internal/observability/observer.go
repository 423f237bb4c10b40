package observability

import (
	"log"

	"github.com/rahul/agentlab/internal/workflow"
)

// SequencerObserver mirrors sequencer progress into the event log and the
// live status line.
type SequencerObserver struct {
	Logger *Logger
}

func NewSequencerObserver(logger *Logger) *SequencerObserver {
	return &SequencerObserver{Logger: logger}
}

func (o *SequencerObserver) OnTransition(from, to workflow.State, snap workflow.Snapshot) {
	log.Printf("[Sequencer] Run %s: %s -> %s", snap.RunID, from, to)
	if o.Logger != nil {
		if to == workflow.StateExecuting && from == workflow.StatePlanning {
			o.Logger.LogPlan(snap.ChatID, snap.RunID, snap.Task, snap.Steps)
		}
		o.Logger.LogState(snap.ChatID, snap.RunID, string(from), string(to), snap.Error)
	}
	Track(snap)
}

func (o *SequencerObserver) OnStep(cursor int, step string, snap workflow.Snapshot) {
	log.Printf("[Sequencer] Step %d/%d: %s", cursor+1, len(snap.Steps), step)
	Track(snap)
	if o.Logger != nil {
		o.Logger.LogStep(snap.ChatID, snap.RunID, cursor, len(snap.Steps), step)
	}
}

var _ workflow.Observer = (*SequencerObserver)(nil)
