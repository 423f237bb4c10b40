package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeState       EventType = "state"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

// NewLogger writes events to out and keeps LLM exchanges under dir/llm.jsonl.
func NewLogger(out io.Writer, dir string) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{
		out:        out,
		llmLogPath: filepath.Join(dir, "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error": "failed to marshal event: %v"}`, err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

// Keeps one .old file.
func (l *Logger) rotateLogs() {
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

func (l *Logger) emit(typ EventType, chatID, runID string, data any) {
	l.Log(Event{Type: typ, ChatID: chatID, RunID: runID, Data: data})
}

func (l *Logger) LogPlan(chatID, runID, task string, steps []string) {
	l.emit(EventTypePlan, chatID, runID, map[string]any{"task": task, "steps": steps})
}

func (l *Logger) LogStep(chatID, runID string, cursor, total int, step string) {
	l.emit(EventTypeStep, chatID, runID, map[string]any{"cursor": cursor, "total": total, "step": step})
}

func (l *Logger) LogState(chatID, runID, from, to, errText string) {
	data := map[string]string{"from": from, "to": to}
	if errText != "" {
		data["error"] = errText
	}
	l.emit(EventTypeState, chatID, runID, data)
}

func (l *Logger) LogToolCall(chatID, runID, tool, args string) {
	l.emit(EventTypeToolCall, chatID, runID, map[string]string{"tool": tool, "args": args})
}

func (l *Logger) LogToolResult(chatID, runID, tool, result string) {
	l.emit(EventTypeToolResult, chatID, runID, map[string]string{"tool": tool, "result": result})
}

func (l *Logger) LogPolicy(chatID, tool, effect, reason string) {
	l.emit(EventTypePolicyCheck, chatID, "", map[string]string{"tool": tool, "effect": effect, "reason": reason})
}

func (l *Logger) LogHeartbeat() {
	l.emit(EventTypeHeartbeat, "", "", map[string]string{"status": "alive"})
}

// LogLLM records one model exchange. These events are also kept in llm.jsonl.
func (l *Logger) LogLLM(chatID, runID string, prompt any, response string, toolCalls any) {
	l.emit(EventTypeLLM, chatID, runID, map[string]any{"prompt": prompt, "response": response, "tool_calls": toolCalls})
}
