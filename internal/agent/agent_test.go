package agent

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/obsassist/voice-backend/internal/obs"
)

type nilOBSProvider struct{}

func (nilOBSProvider) OBS() *obs.Client { return nil }

func TestNewValidation(t *testing.T) {
	logger := zerolog.Nop()

	if _, err := New("", "qwen3:0.6b", nilOBSProvider{}, logger); err == nil {
		t.Error("expected error for empty baseURL")
	}
	if _, err := New("http://localhost:11434/v1", "", nilOBSProvider{}, logger); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("http://localhost:11434/v1", "qwen3:0.6b", nil, logger); err == nil {
		t.Error("expected error for nil provider")
	}
	if _, err := New("http://localhost:11434/v1", "qwen3:0.6b", nilOBSProvider{}, logger); err != nil {
		t.Errorf("valid construction failed: %v", err)
	}
}

func TestContextPromptNotConnected(t *testing.T) {
	a, err := New("http://localhost:11434/v1", "qwen3:0.6b", nilOBSProvider{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := a.contextPrompt()
	want := "OBS is NOT connected. Tell the user to connect first."
	if got != want {
		t.Errorf("contextPrompt() = %q, want %q", got, want)
	}
}

func TestRunToolNotConnected(t *testing.T) {
	a, err := New("http://localhost:11434/v1", "qwen3:0.6b", nilOBSProvider{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := a.runTool("list_sources", "{}")
	if got != "Error: OBS is not connected." {
		t.Errorf("runTool without OBS = %q", got)
	}
}

func TestToolArgsStr(t *testing.T) {
	args := toolArgs{
		"name":   "Display Capture 2",
		"count":  float64(3),
		"action": "",
	}

	if got := args.str("name"); got != "Display Capture 2" {
		t.Errorf("str(name) = %q", got)
	}
	if got := args.str("count"); got != "" {
		t.Errorf("str on non-string = %q, want empty", got)
	}
	if got := args.str("missing"); got != "" {
		t.Errorf("str(missing) = %q, want empty", got)
	}
}

func TestDefaultToolsCoverCommands(t *testing.T) {
	want := []string{
		"list_sources", "show_source", "hide_source",
		"edit_text", "add_text", "recording", "streaming",
	}

	tools := defaultTools()
	byName := make(map[string]bool, len(tools))
	for _, td := range tools {
		byName[td.name] = true
		if td.description == "" {
			t.Errorf("tool %s has no description", td.name)
		}
		if td.run == nil {
			t.Errorf("tool %s has no run func", td.name)
		}
	}
	for _, name := range want {
		if !byName[name] {
			t.Errorf("missing tool %s", name)
		}
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"nil content", errors.New("message content is nil"), true},
		{"invalid request", errors.New("400 invalid_request_error: bad tool call"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), false},
		{"context deadline", errors.New("context deadline exceeded"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
