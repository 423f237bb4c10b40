package agent

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/rahul/agentlab/internal/workflow"
)

// Messenger delivers text to a chat.
type Messenger interface {
	Send(chatID string, text string) error
}

// RunStore is the part of the checkpoint store the scheduler needs.
type RunStore interface {
	workflow.Checkpointer
	Unfinished(ctx context.Context) ([]workflow.Snapshot, error)
}

// ActiveRuns tracks runs being driven by this process so the scheduler does
// not pick them up as interrupted.
type ActiveRuns struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewActiveRuns() *ActiveRuns {
	return &ActiveRuns{ids: make(map[string]struct{})}
}

// Begin marks id active. It reports false when id was already active.
func (a *ActiveRuns) Begin(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.ids[id]; ok {
		return false
	}
	a.ids[id] = struct{}{}
	return true
}

func (a *ActiveRuns) End(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.ids, id)
}

// Scheduler resumes runs that a previous process left in planning or
// executing, once at start and then on every tick. Each run goes back to the
// sequencer of the agent that started it.
type Scheduler struct {
	Store    RunStore
	Gateway  Messenger
	Active   *ActiveRuns
	Interval time.Duration

	sequencers map[string]*workflow.Sequencer
}

// NewScheduler resumes runs of the default agent with seq. Handle adds
// sequencers for other agents.
func NewScheduler(seq *workflow.Sequencer, store RunStore, gateway Messenger, active *ActiveRuns, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if active == nil {
		active = NewActiveRuns()
	}
	return &Scheduler{
		Store:      store,
		Gateway:    gateway,
		Active:     active,
		Interval:   interval,
		sequencers: map[string]*workflow.Sequencer{DefaultAgent: seq},
	}
}

// Handle routes unfinished runs recorded for agent to seq.
func (s *Scheduler) Handle(agent string, seq *workflow.Sequencer) {
	s.sequencers[agent] = seq
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Println("Run scheduler started...")
	s.ResumeAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ResumeAll(ctx)
		}
	}
}

// ResumeAll drives every unfinished run to a terminal state and returns how
// many were attempted.
func (s *Scheduler) ResumeAll(ctx context.Context) int {
	snaps, err := s.Store.Unfinished(ctx)
	if err != nil {
		log.Printf("Error polling unfinished runs: %v", err)
		return 0
	}

	attempted := 0
	for _, snap := range snaps {
		if ctx.Err() != nil {
			break
		}
		key := snap.Agent
		if key == "" {
			key = DefaultAgent
		}
		seq, ok := s.sequencers[key]
		if !ok {
			continue
		}
		if !s.Active.Begin(snap.RunID) {
			continue
		}
		attempted++
		s.resume(ctx, seq, snap)
		s.Active.End(snap.RunID)
	}
	return attempted
}

func (s *Scheduler) resume(ctx context.Context, seq *workflow.Sequencer, snap workflow.Snapshot) {
	log.Printf("Resuming run %s (%s) at step %d/%d", snap.RunID, snap.State, snap.Cursor+1, len(snap.Steps))

	runCtx := WithChatID(ctx, snap.ChatID)
	run, err := seq.Resume(runCtx, snap)
	if errors.Is(err, workflow.ErrInvalidSnapshot) {
		// Unrecoverable record; mark it so it is not polled again.
		snap.State = workflow.StateFailed
		snap.Error = err.Error()
		if saveErr := s.Store.Save(ctx, snap); saveErr != nil {
			log.Printf("Error marking run %s failed: %v", snap.RunID, saveErr)
		}
	}

	var text string
	switch {
	case err != nil && ctx.Err() != nil:
		log.Printf("Run %s interrupted again, left for the next resume", snap.RunID)
		return
	case err != nil:
		log.Printf("Error resuming run %s: %v", snap.RunID, err)
		text = "⚠️ *Interrupted task failed*\n\n" + snap.Task + "\n\n" + err.Error()
	default:
		text = "🔁 *Interrupted task finished*\n\n" + run.Result()
	}

	if s.Gateway != nil && snap.ChatID != "" {
		if err := s.Gateway.Send(snap.ChatID, text); err != nil {
			log.Printf("Error notifying chat %s: %v", snap.ChatID, err)
		}
	}
}
