package agent

import (
	"fmt"
	"strings"

	"github.com/obsassist/voice-backend/internal/obs"
)

// toolArgs is the decoded JSON argument object of one tool call.
type toolArgs map[string]any

func (a toolArgs) str(key string) string {
	v, _ := a[key].(string)
	return v
}

// tool is one function the model may call. Handlers return the result as a
// string, errors included: the model reads tool failures and corrects
// itself (wrong source name, OBS not connected) instead of aborting the run.
type tool struct {
	name        string
	description string
	parameters  map[string]any
	run         func(cl *obs.Client, args toolArgs) string
}

func stringParam(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func objectSchema(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// sceneSources resolves the current scene and its sources in one step, the
// prelude of almost every tool.
func sceneSources(cl *obs.Client) (string, []obs.Source, string) {
	scene, err := cl.CurrentScene()
	if err != nil {
		return "", nil, fmt.Sprintf("Error reading current scene: %v", err)
	}
	sources, err := cl.ListSources(scene)
	if err != nil {
		return "", nil, fmt.Sprintf("Error listing sources: %v", err)
	}
	return scene, sources, ""
}

func setSourceVisibility(cl *obs.Client, args toolArgs, visible bool) string {
	verb := "hidden"
	if visible {
		verb = "visible"
	}

	scene, sources, errMsg := sceneSources(cl)
	if errMsg != "" {
		return errMsg
	}

	match, found := obs.FindSource(args.str("source_name"), sources)
	if !found {
		return fmt.Sprintf("No source named '%s'. Available sources: %s. Call this tool again with the exact name.",
			args.str("source_name"), obs.AvailableSources(sources))
	}

	if err := cl.SetSourceEnabled(scene, match.ItemID, visible); err != nil {
		return fmt.Sprintf("Error changing source visibility: %v", err)
	}
	return fmt.Sprintf("Done — '%s' is now %s in '%s'", match.Name, verb, scene)
}

// defaultTools returns the OBS control toolset offered to the model.
func defaultTools() []tool {
	return []tool{
		{
			name:        "list_sources",
			description: "List all sources in the current OBS scene. Scene is auto-detected.",
			parameters:  objectSchema(nil, map[string]any{}),
			run: func(cl *obs.Client, _ toolArgs) string {
				scene, sources, errMsg := sceneSources(cl)
				if errMsg != "" {
					return errMsg
				}
				if len(sources) == 0 {
					return fmt.Sprintf("Scene: %s\n  No sources found.", scene)
				}
				lines := []string{fmt.Sprintf("Scene: %s", scene)}
				for _, s := range sources {
					status := "hidden"
					if s.Visible {
						status = "visible"
					}
					lines = append(lines, fmt.Sprintf("  - %s (%s)", s.Name, status))
				}
				return strings.Join(lines, "\n")
			},
		},
		{
			name:        "show_source",
			description: "Show a source. Use the exact source name from the source list.",
			parameters: objectSchema([]string{"source_name"}, map[string]any{
				"source_name": stringParam("Exact name of the source to show"),
			}),
			run: func(cl *obs.Client, args toolArgs) string {
				return setSourceVisibility(cl, args, true)
			},
		},
		{
			name:        "hide_source",
			description: "Hide a source. Use the exact source name from the source list.",
			parameters: objectSchema([]string{"source_name"}, map[string]any{
				"source_name": stringParam("Exact name of the source to hide"),
			}),
			run: func(cl *obs.Client, args toolArgs) string {
				return setSourceVisibility(cl, args, false)
			},
		},
		{
			name:        "edit_text",
			description: "Edit text of an existing text source. Use the exact source name from the source list.",
			parameters: objectSchema([]string{"source_name", "text"}, map[string]any{
				"source_name": stringParam("Exact name of the text source"),
				"text":        stringParam("New text content"),
			}),
			run: func(cl *obs.Client, args toolArgs) string {
				_, sources, errMsg := sceneSources(cl)
				if errMsg != "" {
					return errMsg
				}
				match, found := obs.FindSource(args.str("source_name"), sources)
				if !found {
					return fmt.Sprintf("No source named '%s'. Available sources: %s. Call this tool again with the exact name.",
						args.str("source_name"), obs.AvailableSources(sources))
				}
				if err := cl.SetInputText(match.Name, args.str("text")); err != nil {
					return fmt.Sprintf("Error editing text: %v", err)
				}
				return fmt.Sprintf("Done — updated text of '%s' to: %s", match.Name, args.str("text"))
			},
		},
		{
			name:        "add_text",
			description: "Add a text overlay centered on screen. Just provide the text content.",
			parameters: objectSchema([]string{"text"}, map[string]any{
				"text": stringParam("Text content to display"),
			}),
			run: func(cl *obs.Client, args toolArgs) string {
				scene, err := cl.CurrentScene()
				if err != nil {
					return fmt.Sprintf("Error reading current scene: %v", err)
				}
				name, err := cl.CreateCenteredText(scene, args.str("text"))
				if err != nil {
					return fmt.Sprintf("Error adding text: %v", err)
				}
				return fmt.Sprintf("Done — added '%s' centered on '%s'", name, scene)
			},
		},
		{
			name:        "recording",
			description: "Start or stop OBS recording. Use action='start' to begin or action='stop' to end.",
			parameters: objectSchema([]string{"action"}, map[string]any{
				"action": stringParam("Either 'start' or 'stop'"),
			}),
			run: func(cl *obs.Client, args toolArgs) string {
				active, err := cl.RecordingActive()
				if err != nil {
					return fmt.Sprintf("Error with recording: %v", err)
				}
				switch strings.ToLower(strings.TrimSpace(args.str("action"))) {
				case "start":
					if active {
						return "Recording is already in progress."
					}
					if err := cl.StartRecording(); err != nil {
						return fmt.Sprintf("Error with recording: %v", err)
					}
					return "Done — recording started."
				case "stop":
					if !active {
						return "Recording is not running."
					}
					path, err := cl.StopRecording()
					if err != nil {
						return fmt.Sprintf("Error with recording: %v", err)
					}
					return fmt.Sprintf("Done — recording stopped. Saved to: %s", path)
				default:
					return fmt.Sprintf("Unknown action '%s'. Use 'start' or 'stop'.", args.str("action"))
				}
			},
		},
		{
			name:        "streaming",
			description: "Start or stop OBS streaming. Use action='start' to begin or action='stop' to end.",
			parameters: objectSchema([]string{"action"}, map[string]any{
				"action": stringParam("Either 'start' or 'stop'"),
			}),
			run: func(cl *obs.Client, args toolArgs) string {
				active, err := cl.StreamingActive()
				if err != nil {
					return fmt.Sprintf("Error with streaming: %v", err)
				}
				switch strings.ToLower(strings.TrimSpace(args.str("action"))) {
				case "start":
					if active {
						return "Stream is already live."
					}
					if err := cl.StartStreaming(); err != nil {
						return fmt.Sprintf("Error with streaming: %v", err)
					}
					return "Done — stream started."
				case "stop":
					if !active {
						return "Stream is not running."
					}
					if err := cl.StopStreaming(); err != nil {
						return fmt.Sprintf("Error with streaming: %v", err)
					}
					return "Done — stream stopped."
				default:
					return fmt.Sprintf("Unknown action '%s'. Use 'start' or 'stop'.", args.str("action"))
				}
			},
		},
	}
}
