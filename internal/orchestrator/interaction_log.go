package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ChamsBouzaiene/dodo/internal/engine"
)

// interactionRecord is one --log-messages JSONL line: the full message
// vector and function catalogue as they stood for that interaction.
type interactionRecord struct {
	Messages  []engine.ChatMessage `json:"messages"`
	Functions []engine.ToolSchema  `json:"functions"`
}

// InteractionLogger appends one JSONL record per interaction to a file.
// Safe for concurrent use; a nil *InteractionLogger is a valid no-op.
type InteractionLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewInteractionLogger opens path for appending, creating it if absent.
func NewInteractionLogger(path string) (*InteractionLogger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open interaction log %s: %w", path, err)
	}
	return &InteractionLogger{file: f}, nil
}

// Log appends one JSONL record. No-op on a nil receiver.
func (l *InteractionLogger) Log(messages []engine.ChatMessage, functions []engine.ToolSchema) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(interactionRecord{Messages: messages, Functions: functions})
	if err != nil {
		return fmt.Errorf("marshal interaction record: %w", err)
	}
	line = append(line, '\n')
	_, err = l.file.Write(line)
	return err
}

// Close closes the underlying file. No-op on a nil receiver.
func (l *InteractionLogger) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}
