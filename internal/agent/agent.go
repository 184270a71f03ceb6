package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"

	"github.com/obsassist/voice-backend/internal/obs"
)

// maxToolRounds bounds the send/execute/resend loop so the model cannot
// ping-pong on tools forever inside the dispatch timeout.
const maxToolRounds = 8

const systemPrompt = `You control OBS Studio. ALWAYS call a tool. NEVER reply with instructions or questions.
The current scene and sources are listed below. Use the EXACT source name from the list.

Rules:
- "show X" or "hide X" -> find the closest source name from the list, call show_source/hide_source with that EXACT name.
- "add text ..." -> call add_text.
- "start/stop recording" -> call recording with action="start" or "stop".
- "start/stop streaming" -> call streaming with action="start" or "stop".

Name matching examples:
- User says "capture 6" and sources include "capture_6" -> use "capture_6"
- User says "display capture" and sources include "Display Capture 2" -> use "Display Capture 2"
- User says "webcam" and sources include "Video Capture Device" -> use "Video Capture Device"

Just DO it. Never ask "would you like..." -- act immediately.`

// OBSProvider yields the session's current OBS handle. The handle changes
// when the user reconnects, so the agent asks for it per command instead of
// capturing it at construction.
type OBSProvider interface {
	OBS() *obs.Client
}

// Compile-time interface check.
var _ Executor = (*Agent)(nil)

// Agent executes commands with a tool-calling chat loop against an
// OpenAI-compatible endpoint (Ollama by default).
type Agent struct {
	client oai.Client
	model  string
	obs    OBSProvider
	tools  []tool
	logger zerolog.Logger
}

// New constructs an Agent talking to the given base URL.
func New(baseURL, model string, obsProvider OBSProvider, logger zerolog.Logger) (*Agent, error) {
	if baseURL == "" {
		return nil, errors.New("agent: baseURL must not be empty")
	}
	if model == "" {
		return nil, errors.New("agent: model must not be empty")
	}
	if obsProvider == nil {
		return nil, errors.New("agent: OBSProvider must not be nil")
	}

	client := oai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey("ollama"), // the local endpoint ignores the key but the SDK requires one
	)

	return &Agent{
		client: client,
		model:  model,
		obs:    obsProvider,
		tools:  defaultTools(),
		logger: logger,
	}, nil
}

// Execute runs one command through the tool-calling loop and returns the
// model's final text reply.
func (a *Agent) Execute(ctx context.Context, command string) (string, error) {
	messages := []oai.ChatCompletionMessageParamUnion{
		oai.SystemMessage(systemPrompt + "\n\n" + a.contextPrompt()),
		oai.UserMessage(command),
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(a.model),
		Messages: messages,
	}
	for _, td := range a.tools {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        td.name,
				Description: param.NewOpt(td.description),
				Parameters:  shared.FunctionParameters(td.parameters),
			},
		})
	}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := a.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("agent: chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", nil // treated as an empty result upstream
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return strings.TrimSpace(msg.Content), nil
		}

		params.Messages = append(params.Messages, msg.ToParam())
		for _, tc := range msg.ToolCalls {
			result := a.runTool(tc.Function.Name, tc.Function.Arguments)
			a.logger.Debug().
				Str("tool", tc.Function.Name).
				Str("result", result).
				Msg("tool executed")
			params.Messages = append(params.Messages, oai.ToolMessage(result, tc.ID))
		}
	}

	return "", fmt.Errorf("agent: no final reply after %d tool rounds", maxToolRounds)
}

// contextPrompt mirrors what the user sees in OBS: current scene and source
// visibility, or a connect hint when no handle exists yet.
func (a *Agent) contextPrompt() string {
	cl := a.obs.OBS()
	if cl == nil {
		return "OBS is NOT connected. Tell the user to connect first."
	}

	scene, err := cl.CurrentScene()
	if err != nil {
		return fmt.Sprintf("Could not read OBS sources: %v", err)
	}
	sources, err := cl.ListSources(scene)
	if err != nil {
		return fmt.Sprintf("Could not read OBS sources: %v", err)
	}
	if len(sources) == 0 {
		return fmt.Sprintf("Current scene: %s\nNo sources in this scene.", scene)
	}

	lines := []string{fmt.Sprintf("Current scene: %s", scene), "Sources:"}
	for _, s := range sources {
		status := "hidden"
		if s.Visible {
			status = "visible"
		}
		lines = append(lines, fmt.Sprintf("  - %q (%s)", s.Name, status))
	}
	return strings.Join(lines, "\n")
}

func (a *Agent) runTool(name, rawArgs string) string {
	cl := a.obs.OBS()
	if cl == nil {
		return "Error: OBS is not connected."
	}

	var args toolArgs
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return fmt.Sprintf("Error: invalid tool arguments: %v", err)
		}
	}

	for _, t := range a.tools {
		if t.name == name {
			return t.run(cl, args)
		}
	}
	return fmt.Sprintf("Error: unknown tool '%s'.", name)
}

// IsTransient classifies executor errors that small local models produce
// intermittently (nil content during tool-call reasoning) and that a retry
// usually resolves. Anything else is a hard failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "invalid_request_error") || strings.Contains(msg, "nil")
}
