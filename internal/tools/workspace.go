package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// WorkspaceTool lets steps keep notes and drafts as files under one directory.
// Paths cannot escape the directory.
type WorkspaceTool struct {
	Root string
}

func NewWorkspaceTool(root string) (*WorkspaceTool, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &WorkspaceTool{Root: absRoot}, nil
}

func (w *WorkspaceTool) Name() string {
	return "workspace"
}

func (w *WorkspaceTool) Description() string {
	return "Keep notes and drafts between steps: read, write, append or list files in the workspace."
}

func (w *WorkspaceTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"enum":        []string{"read", "write", "append", "list"},
				"description": "The operation to perform",
			},
			"filename": map[string]any{
				"type":        "string",
				"description": "The file name relative to the workspace (use '.' with 'list')",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The content to write or append",
			},
		},
		"required": []string{"command", "filename"},
	}
}

func (w *WorkspaceTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Command  string `json:"command"`
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	root, err := os.OpenRoot(w.Root)
	if err != nil {
		return "", fmt.Errorf("failed to open workspace: %w", err)
	}
	defer root.Close()

	name := filepath.Clean(args.Filename)
	switch args.Command {
	case "read":
		f, err := root.Open(name)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), nil

	case "write", "append":
		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if args.Command == "append" {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
		f, err := root.OpenFile(name, flags, 0644)
		if err != nil {
			return "", fmt.Errorf("failed to open file: %w", err)
		}
		if _, err := f.WriteString(args.Content); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		return fmt.Sprintf("Successfully wrote %d bytes to %s", len(args.Content), name), nil

	case "list":
		dir, err := root.Open(name)
		if err != nil {
			return "", fmt.Errorf("failed to list directory: %w", err)
		}
		defer dir.Close()
		entries, err := dir.ReadDir(-1)
		if err != nil {
			return "", fmt.Errorf("failed to list directory: %w", err)
		}
		var sb strings.Builder
		for _, entry := range entries {
			typeStr := "file"
			if entry.IsDir() {
				typeStr = "dir"
			}
			fmt.Fprintf(&sb, "[%s] %s\n", typeStr, entry.Name())
		}
		if sb.Len() == 0 {
			return "Directory is empty", nil
		}
		return sb.String(), nil

	default:
		return "Invalid command. Use 'read', 'write', 'append' or 'list'", nil
	}
}
