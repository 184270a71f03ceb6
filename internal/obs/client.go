// Package obs wraps the OBS Studio WebSocket API consumed by the command
// executor's tools. The session owns at most one Client, created on demand
// from an obs_connect request; a failed connect yields (nil, message) so the
// failure reaches the user instead of the logs.
package obs

import (
	"fmt"
	"strings"
	"time"

	"github.com/andreykaipov/goobs"
	"github.com/andreykaipov/goobs/api/requests/inputs"
	"github.com/andreykaipov/goobs/api/requests/sceneitems"
	"github.com/andreykaipov/goobs/api/typedefs"
)

// Source is one scene item as presented to the executor.
type Source struct {
	Name    string
	ItemID  int
	Visible bool
}

// Client is a connected OBS WebSocket handle.
type Client struct {
	conn *goobs.Client
}

// Connect dials the OBS WebSocket server and verifies the connection by
// fetching version info. On failure it returns a nil client and a
// human-readable status message; on success the message carries the OBS
// version, matching what the UI shows after connecting.
func Connect(host string, port int, password string, timeout time.Duration) (*Client, string) {
	addr := fmt.Sprintf("%s:%d", host, port)

	conn, err := goobs.New(addr,
		goobs.WithPassword(password),
		goobs.WithResponseTimeout(timeout),
	)
	if err != nil {
		return nil, err.Error()
	}

	version, err := conn.General.GetVersion()
	if err != nil {
		_ = conn.Disconnect()
		return nil, err.Error()
	}

	return &Client{conn: conn}, fmt.Sprintf("Connected — OBS %s", version.ObsVersion)
}

// Close tears down the websocket connection.
func (c *Client) Close() error {
	return c.conn.Disconnect()
}

// CurrentScene returns the name of the current program scene.
func (c *Client) CurrentScene() (string, error) {
	resp, err := c.conn.Scenes.GetCurrentProgramScene()
	if err != nil {
		return "", fmt.Errorf("obs: get current scene: %w", err)
	}
	return resp.CurrentProgramSceneName, nil
}

// ListSources returns the sources of the given scene.
func (c *Client) ListSources(scene string) ([]Source, error) {
	resp, err := c.conn.SceneItems.GetSceneItemList(
		sceneitems.NewGetSceneItemListParams().WithSceneName(scene),
	)
	if err != nil {
		return nil, fmt.Errorf("obs: list scene items: %w", err)
	}

	sources := make([]Source, 0, len(resp.SceneItems))
	for _, item := range resp.SceneItems {
		sources = append(sources, Source{
			Name:    item.SourceName,
			ItemID:  int(item.SceneItemID),
			Visible: item.SceneItemEnabled,
		})
	}
	return sources, nil
}

// FindSource locates a source by exact name, case-insensitive.
func FindSource(name string, sources []Source) (Source, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, s := range sources {
		if strings.ToLower(s.Name) == needle {
			return s, true
		}
	}
	return Source{}, false
}

// AvailableSources formats source names for tool error messages.
func AvailableSources(sources []Source) string {
	if len(sources) == 0 {
		return "none"
	}
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = fmt.Sprintf("'%s'", s.Name)
	}
	return strings.Join(names, ", ")
}

// SetSourceEnabled shows or hides one scene item.
func (c *Client) SetSourceEnabled(scene string, itemID int, enabled bool) error {
	_, err := c.conn.SceneItems.SetSceneItemEnabled(
		sceneitems.NewSetSceneItemEnabledParams().
			WithSceneName(scene).
			WithSceneItemId(itemID).
			WithSceneItemEnabled(enabled),
	)
	if err != nil {
		return fmt.Errorf("obs: set scene item enabled: %w", err)
	}
	return nil
}

// SetInputText replaces the text of an existing text input.
func (c *Client) SetInputText(inputName, text string) error {
	_, err := c.conn.Inputs.SetInputSettings(
		inputs.NewSetInputSettingsParams().
			WithInputName(inputName).
			WithInputSettings(map[string]any{"text": text}).
			WithOverlay(true),
	)
	if err != nil {
		return fmt.Errorf("obs: set input settings: %w", err)
	}
	return nil
}

// textInputName derives the input name for a created text overlay. The
// label is truncated on runes so multi-byte text never yields an invalid
// UTF-8 name.
func textInputName(text string) string {
	label := []rune(text)
	if len(label) > 20 {
		label = label[:20]
	}
	return fmt.Sprintf("Text - %s", string(label))
}

// CreateCenteredText adds a text overlay centered on the canvas and returns
// the generated input name.
func (c *Client) CreateCenteredText(scene, text string) (string, error) {
	inputName := textInputName(text)

	settings := map[string]any{
		"text":   text,
		"font":   map[string]any{"face": "Arial", "size": 72, "style": "Bold", "flags": 0},
		"color":  uint32(0xFFFFFFFF), // white (ABGR)
		"align":  "center",
		"valign": "center",
	}

	created, err := c.conn.Inputs.CreateInput(
		inputs.NewCreateInputParams().
			WithSceneName(scene).
			WithInputName(inputName).
			WithInputKind("text_gdiplus_v2").
			WithInputSettings(settings).
			WithSceneItemEnabled(true),
	)
	if err != nil {
		return "", fmt.Errorf("obs: create text input: %w", err)
	}
	itemID := int(created.SceneItemId)

	// Give OBS a moment to render the source so its dimensions are available.
	time.Sleep(150 * time.Millisecond)

	video, err := c.conn.Config.GetVideoSettings()
	if err != nil {
		return inputName, nil // created but not centered
	}
	transform, err := c.conn.SceneItems.GetSceneItemTransform(
		sceneitems.NewGetSceneItemTransformParams().
			WithSceneName(scene).
			WithSceneItemId(itemID),
	)
	if err != nil {
		return inputName, nil
	}

	posX := (video.BaseWidth - transform.SceneItemTransform.SourceWidth) / 2
	posY := (video.BaseHeight - transform.SceneItemTransform.SourceHeight) / 2
	_, err = c.conn.SceneItems.SetSceneItemTransform(
		sceneitems.NewSetSceneItemTransformParams().
			WithSceneName(scene).
			WithSceneItemId(itemID).
			WithSceneItemTransform(&typedefs.SceneItemTransform{
				PositionX: posX,
				PositionY: posY,
			}),
	)
	if err != nil {
		return inputName, nil
	}
	return inputName, nil
}

// RecordingActive reports whether a recording is in progress.
func (c *Client) RecordingActive() (bool, error) {
	status, err := c.conn.Record.GetRecordStatus()
	if err != nil {
		return false, fmt.Errorf("obs: get record status: %w", err)
	}
	return status.OutputActive, nil
}

// StartRecording begins recording.
func (c *Client) StartRecording() error {
	if _, err := c.conn.Record.StartRecord(); err != nil {
		return fmt.Errorf("obs: start record: %w", err)
	}
	return nil
}

// StopRecording stops recording and returns the output file path.
func (c *Client) StopRecording() (string, error) {
	resp, err := c.conn.Record.StopRecord()
	if err != nil {
		return "", fmt.Errorf("obs: stop record: %w", err)
	}
	return resp.OutputPath, nil
}

// StreamingActive reports whether a stream is live.
func (c *Client) StreamingActive() (bool, error) {
	status, err := c.conn.Stream.GetStreamStatus()
	if err != nil {
		return false, fmt.Errorf("obs: get stream status: %w", err)
	}
	return status.OutputActive, nil
}

// StartStreaming begins streaming.
func (c *Client) StartStreaming() error {
	if _, err := c.conn.Stream.StartStream(); err != nil {
		return fmt.Errorf("obs: start stream: %w", err)
	}
	return nil
}

// StopStreaming stops streaming.
func (c *Client) StopStreaming() error {
	if _, err := c.conn.Stream.StopStream(); err != nil {
		return fmt.Errorf("obs: stop stream: %w", err)
	}
	return nil
}
