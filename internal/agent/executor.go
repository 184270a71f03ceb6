// Package agent implements the command executor: an LLM served by Ollama's
// OpenAI-compatible endpoint, wired to OBS control tools. The session relay
// depends only on the Executor interface, not on this implementation.
package agent

import "context"

// Executor turns one natural-language command into a textual result.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, command string) (string, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, command string) (string, error) {
	return f(ctx, command)
}
