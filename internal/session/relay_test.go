package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsassist/voice-backend/internal/agent"
	"github.com/obsassist/voice-backend/internal/config"
	"github.com/obsassist/voice-backend/internal/wake"
)

type stubExecutor struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	delay   time.Duration
}

func (e *stubExecutor) Execute(ctx context.Context, command string) (string, error) {
	e.mu.Lock()
	i := e.calls
	e.calls++
	e.mu.Unlock()

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	var err error
	if i < len(e.errs) {
		err = e.errs[i]
	}
	var reply string
	if i < len(e.replies) {
		reply = e.replies[i]
	}
	return reply, err
}

func (e *stubExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type stubListener struct {
	started atomic.Bool
	stopped atomic.Bool
}

func (l *stubListener) Start() error { l.started.Store(true); return nil }
func (l *stubListener) Stop()        { l.stopped.Store(true) }

type testHarness struct {
	executor  *stubExecutor
	listeners []*stubListener
	onText    func(string)
	mu        sync.Mutex
}

func (h *testHarness) deps(cfg *config.Config) Deps {
	gate, err := wake.NewGate(cfg.WakeWord)
	if err != nil {
		panic(err)
	}
	return Deps{
		Config: cfg,
		NewExecutor: func(agent.OBSProvider) (agent.Executor, error) {
			return h.executor, nil
		},
		NewListener: func(onTranscription func(string)) (VoiceListener, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			l := &stubListener{}
			h.listeners = append(h.listeners, l)
			h.onText = onTranscription
			return l, nil
		},
		IsTransient: agent.IsTransient,
		Gate:        gate,
	}
}

func (h *testHarness) emitTranscription(text string) {
	h.mu.Lock()
	cb := h.onText
	h.mu.Unlock()
	if cb != nil {
		cb(text)
	}
}

func testConfig() *config.Config {
	return &config.Config{
		WakeWord:            "obs",
		DispatchTimeout:     2 * time.Second,
		DispatchMaxAttempts: 3,
		OBSHost:             "localhost",
		OBSDialTimeout:      time.Second,
	}
}

func dialSession(t *testing.T, deps Deps) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(Handler(deps))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return msg
}

func expectType(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	msg := readMessage(t, conn)
	if msg["type"] != want {
		t.Fatalf("got message type %v, want %s (full: %v)", msg["type"], want, msg)
	}
	return msg
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestChatMessageStreamsReply(t *testing.T) {
	h := &testHarness{executor: &stubExecutor{replies: []string{"Done — 'webcam' is now visible."}}}
	conn, cleanup := dialSession(t, h.deps(testConfig()))
	defer cleanup()

	expectType(t, conn, "obs_status")

	sendJSON(t, conn, map[string]any{"type": "message", "content": "show webcam"})

	expectType(t, conn, "stream_start")
	delta := expectType(t, conn, "stream_delta")
	if delta["content"] != "Done — 'webcam' is now visible." {
		t.Errorf("stream_delta content = %v", delta["content"])
	}
	expectType(t, conn, "stream_end")
}

func TestEmptyChatMessageIgnored(t *testing.T) {
	h := &testHarness{executor: &stubExecutor{}}
	conn, cleanup := dialSession(t, h.deps(testConfig()))
	defer cleanup()

	expectType(t, conn, "obs_status")

	sendJSON(t, conn, map[string]any{"type": "message", "content": ""})
	sendJSON(t, conn, map[string]any{"type": "message", "content": "hello"})

	// The empty message must produce nothing; the next frame is the
	// stream_start of the second message.
	expectType(t, conn, "stream_start")
	if h.executor.callCount() != 1 {
		// callCount can only be 1 once stream_start for "hello" arrived
		t.Errorf("executor calls = %d, want 1", h.executor.callCount())
	}
}

func TestDispatchTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.DispatchTimeout = 100 * time.Millisecond
	h := &testHarness{executor: &stubExecutor{delay: 5 * time.Second, replies: []string{"late"}}}
	conn, cleanup := dialSession(t, h.deps(cfg))
	defer cleanup()

	expectType(t, conn, "obs_status")
	sendJSON(t, conn, map[string]any{"type": "message", "content": "slow please"})

	expectType(t, conn, "stream_start")
	errMsg := expectType(t, conn, "error")
	if errMsg["content"] != timeoutReply {
		t.Errorf("timeout error content = %v", errMsg["content"])
	}

	// The session must keep serving requests after a timeout.
	h.executor.mu.Lock()
	h.executor.delay = 0
	h.executor.replies = []string{"", "ok now"}
	h.executor.calls = 0
	h.executor.mu.Unlock()

	sendJSON(t, conn, map[string]any{"type": "message", "content": "fast please"})
	expectType(t, conn, "stream_start")
	delta := expectType(t, conn, "stream_delta")
	if delta["content"] != "ok now" {
		t.Errorf("post-timeout reply = %v", delta["content"])
	}
	expectType(t, conn, "stream_end")
}

func TestTransientErrorsRetriedWithoutLeaking(t *testing.T) {
	h := &testHarness{executor: &stubExecutor{
		replies: []string{"", "", "third time lucky"},
	}}
	conn, cleanup := dialSession(t, h.deps(testConfig()))
	defer cleanup()

	expectType(t, conn, "obs_status")
	sendJSON(t, conn, map[string]any{"type": "message", "content": "hello"})

	expectType(t, conn, "stream_start")
	delta := expectType(t, conn, "stream_delta")
	if delta["content"] != "third time lucky" {
		t.Errorf("reply = %v, want retried result", delta["content"])
	}
	expectType(t, conn, "stream_end")

	if got := h.executor.callCount(); got != 3 {
		t.Errorf("executor calls = %d, want 3", got)
	}
}

func TestHardErrorSurfacedAsProtocolError(t *testing.T) {
	h := &testHarness{executor: &stubExecutor{
		errs: []error{errors.New("dial tcp: connection refused")},
	}}
	conn, cleanup := dialSession(t, h.deps(testConfig()))
	defer cleanup()

	expectType(t, conn, "obs_status")
	sendJSON(t, conn, map[string]any{"type": "message", "content": "hello"})

	expectType(t, conn, "stream_start")
	errMsg := expectType(t, conn, "error")
	if !strings.Contains(errMsg["content"].(string), "connection refused") {
		t.Errorf("error content = %v", errMsg["content"])
	}
	if got := h.executor.callCount(); got != 1 {
		t.Errorf("hard error retried: %d calls", got)
	}
}

func TestVoiceStartIdempotent(t *testing.T) {
	h := &testHarness{executor: &stubExecutor{}}
	conn, cleanup := dialSession(t, h.deps(testConfig()))
	defer cleanup()

	expectType(t, conn, "obs_status")

	sendJSON(t, conn, map[string]any{"type": "voice_start"})
	status := expectType(t, conn, "voice_status")
	if status["listening"] != true {
		t.Errorf("voice_status after start = %v", status)
	}

	sendJSON(t, conn, map[string]any{"type": "voice_start"})
	status = expectType(t, conn, "voice_status")
	if status["listening"] != true {
		t.Errorf("voice_status after repeated start = %v", status)
	}

	h.mu.Lock()
	n := len(h.listeners)
	var first *stubListener
	if n > 0 {
		first = h.listeners[0]
	}
	h.mu.Unlock()
	if n != 1 {
		t.Fatalf("listeners created = %d, want 1", n)
	}

	sendJSON(t, conn, map[string]any{"type": "voice_stop"})
	status = expectType(t, conn, "voice_status")
	if status["listening"] != false {
		t.Errorf("voice_status after stop = %v", status)
	}
	if !first.stopped.Load() {
		t.Error("listener not stopped")
	}
}

func TestTranscriptionGatedByWakeWord(t *testing.T) {
	h := &testHarness{executor: &stubExecutor{replies: []string{"done"}}}
	conn, cleanup := dialSession(t, h.deps(testConfig()))
	defer cleanup()

	expectType(t, conn, "obs_status")

	sendJSON(t, conn, map[string]any{"type": "voice_start"})
	expectType(t, conn, "voice_status")

	// No wake word: the session must emit nothing and call no executor.
	h.emitTranscription("what is the weather today")
	// Wake word: transcription echo then a full dispatch envelope.
	h.emitTranscription("OBS, show the webcam")

	tr := expectType(t, conn, "transcription")
	if tr["content"] != "OBS, show the webcam" {
		t.Errorf("transcription content = %v", tr["content"])
	}
	expectType(t, conn, "stream_start")
	expectType(t, conn, "stream_delta")
	expectType(t, conn, "stream_end")

	if got := h.executor.callCount(); got != 1 {
		t.Errorf("executor calls = %d, want 1", got)
	}
}

func TestMalformedMessagesIgnored(t *testing.T) {
	h := &testHarness{executor: &stubExecutor{replies: []string{"still here"}}}
	conn, cleanup := dialSession(t, h.deps(testConfig()))
	defer cleanup()

	expectType(t, conn, "obs_status")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	sendJSON(t, conn, map[string]any{"type": "no_such_type"})
	sendJSON(t, conn, map[string]any{"type": "message", "content": "hello"})

	expectType(t, conn, "stream_start")
	delta := expectType(t, conn, "stream_delta")
	if delta["content"] != "still here" {
		t.Errorf("reply after garbage = %v", delta["content"])
	}
	expectType(t, conn, "stream_end")
}

func TestDisconnectStopsListener(t *testing.T) {
	h := &testHarness{executor: &stubExecutor{}}
	conn, cleanup := dialSession(t, h.deps(testConfig()))
	defer cleanup()

	expectType(t, conn, "obs_status")
	sendJSON(t, conn, map[string]any{"type": "voice_start"})
	expectType(t, conn, "voice_status")

	h.mu.Lock()
	l := h.listeners[0]
	h.mu.Unlock()

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.stopped.Load() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("listener still running after disconnect")
}

func TestTranscriptionBurstLosesNothing(t *testing.T) {
	const burst = 24

	replies := make([]string, burst)
	for i := range replies {
		replies[i] = fmt.Sprintf("reply-%d", i)
	}
	h := &testHarness{executor: &stubExecutor{replies: replies}}
	conn, cleanup := dialSession(t, h.deps(testConfig()))
	defer cleanup()

	expectType(t, conn, "obs_status")
	sendJSON(t, conn, map[string]any{"type": "voice_start"})
	expectType(t, conn, "voice_status")

	// Emit far more transcriptions than the handoff buffer holds, the way
	// the worker goroutine would. Every one must come out, in emit order.
	go func() {
		for i := 0; i < burst; i++ {
			h.emitTranscription(fmt.Sprintf("obs command %d", i))
		}
	}()

	for i := 0; i < burst; i++ {
		tr := expectType(t, conn, "transcription")
		if want := fmt.Sprintf("obs command %d", i); tr["content"] != want {
			t.Fatalf("transcription %d = %v, want %q", i, tr["content"], want)
		}
		expectType(t, conn, "stream_start")
		delta := expectType(t, conn, "stream_delta")
		if want := fmt.Sprintf("reply-%d", i); delta["content"] != want {
			t.Fatalf("reply %d = %v, want %q", i, delta["content"], want)
		}
		expectType(t, conn, "stream_end")
	}
}
