package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/obsassist/voice-backend/internal/agent"
	"github.com/obsassist/voice-backend/internal/config"
	"github.com/obsassist/voice-backend/internal/obs"
	"github.com/obsassist/voice-backend/internal/observability"
	"github.com/obsassist/voice-backend/internal/resilience"
	"github.com/obsassist/voice-backend/internal/wake"
)

const timeoutReply = "Request timed out — the model took too long to respond."

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Local desktop frontend only, no origin restrictions.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// VoiceListener is the session's view of the microphone pipeline. Stop must
// terminate the pipeline's goroutines within a bounded time.
type VoiceListener interface {
	Start() error
	Stop()
}

// ListenerFactory builds a fresh listener whose transcriptions are delivered
// through the given callback. The callback is invoked from the listener's
// worker goroutine and must not block for long.
type ListenerFactory func(onTranscription func(text string)) (VoiceListener, error)

// ExecutorFactory builds the command executor for one session. The session
// itself is passed as the OBS provider so the executor always sees the
// connection most recently established over this socket.
type ExecutorFactory func(p agent.OBSProvider) (agent.Executor, error)

// Deps carries everything a session needs beyond its socket.
type Deps struct {
	Config      *config.Config
	NewExecutor ExecutorFactory
	NewListener ListenerFactory
	IsTransient func(error) bool
	Gate        *wake.Gate
}

// Session relays one websocket connection: chat and voice commands in,
// streamed replies and status updates out. All state is owned by the run
// loop goroutine; the only cross-goroutine paths are the transcriptions
// channel and the obs handle read through OBS().
type Session struct {
	conn *websocket.Conn
	deps Deps

	sessionID string
	logger    zerolog.Logger

	executor agent.Executor
	listener VoiceListener

	obsMu     sync.RWMutex
	obsClient *obs.Client

	// Inbound socket frames and worker-thread transcriptions both funnel
	// into the run loop so every message is handled sequentially. closing
	// unblocks a pending transcription handoff once the loop has exited.
	inbound        chan []byte
	transcriptions chan string
	closing        chan struct{}
}

// Handler upgrades /ws/chat requests and runs a session per connection.
func Handler(deps Deps) http.HandlerFunc {
	logger := observability.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error().Err(err).Msg("websocket upgrade failed")
			return
		}

		s, err := newSession(conn, deps)
		if err != nil {
			logger.Error().Err(err).Msg("session setup failed")
			conn.Close()
			return
		}
		s.run()
	}
}

func newSession(conn *websocket.Conn, deps Deps) (*Session, error) {
	s := &Session{
		conn:           conn,
		deps:           deps,
		sessionID:      observability.NewSessionID(),
		inbound:        make(chan []byte),
		transcriptions: make(chan string, 16),
		closing:        make(chan struct{}),
	}
	s.logger = observability.SessionLogger(s.sessionID)

	executor, err := deps.NewExecutor(s)
	if err != nil {
		return nil, err
	}
	s.executor = executor
	return s, nil
}

// OBS returns the connection established by the most recent obs_connect, or
// nil when none succeeded yet.
func (s *Session) OBS() *obs.Client {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	return s.obsClient
}

func (s *Session) setOBS(cl *obs.Client) {
	s.obsMu.Lock()
	prev := s.obsClient
	s.obsClient = cl
	s.obsMu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (s *Session) run() {
	observability.RecordSessionStart()
	s.logger.Info().Msg("session started")

	defer func() {
		close(s.closing)
		s.teardown()
		observability.RecordSessionEnd()
		s.logger.Info().Msg("session ended")
	}()

	// Status snapshot the frontend renders immediately on connect.
	s.send(obsStatus(false, "not connected"))

	go s.readPump()

	for {
		select {
		case raw, ok := <-s.inbound:
			if !ok {
				return
			}
			s.handleMessage(raw)
		case text := <-s.transcriptions:
			s.handleTranscription(text)
		}
	}
}

// readPump is the sole reader of the socket. It closes inbound on any read
// error, which ends the run loop.
func (s *Session) readPump() {
	defer close(s.inbound)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		s.inbound <- raw
	}
}

func (s *Session) teardown() {
	if s.listener != nil {
		s.listener.Stop()
		s.listener = nil
		observability.RecordListenerStop()
	}
	s.setOBS(nil)
	s.conn.Close()
}

func (s *Session) handleMessage(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Debug().Err(err).Msg("ignoring malformed message")
		return
	}

	switch msg.Type {
	case "message":
		if msg.Content == "" {
			return
		}
		s.dispatch(msg.Content)

	case "obs_connect":
		s.handleOBSConnect(msg.Port, msg.Password)

	case "voice_start":
		s.handleVoiceStart()

	case "voice_stop":
		s.handleVoiceStop()

	default:
		s.logger.Debug().Str("type", msg.Type).Msg("ignoring unknown message type")
	}
}

func (s *Session) handleOBSConnect(port int, password string) {
	if port == 0 {
		port = 4455
	}

	cfg := s.deps.Config
	cl, status := obs.Connect(cfg.OBSHost, port, password, cfg.OBSDialTimeout)
	s.setOBS(cl)

	if cl == nil {
		s.logger.Warn().Str("status", status).Msg("obs connection failed")
		observability.RecordError("obs_connect", "session")
	} else {
		s.logger.Info().Str("status", status).Msg("obs connected")
	}
	s.send(obsStatus(cl != nil, status))
}

func (s *Session) handleVoiceStart() {
	if s.listener == nil {
		listener, err := s.deps.NewListener(s.enqueueTranscription)
		if err != nil {
			s.logger.Error().Err(err).Msg("listener setup failed")
			observability.RecordError("listener_setup", "session")
			s.send(errorMessage("Could not start voice capture: " + err.Error()))
			return
		}
		if err := listener.Start(); err != nil {
			s.logger.Error().Err(err).Msg("listener start failed")
			observability.RecordError("listener_start", "session")
			s.send(errorMessage("Could not start voice capture: " + err.Error()))
			return
		}
		s.listener = listener
		observability.RecordListenerStart()
		s.logger.Info().Msg("voice listener started")
	}
	s.send(voiceStatus(true))
}

func (s *Session) handleVoiceStop() {
	if s.listener != nil {
		s.listener.Stop()
		s.listener = nil
		observability.RecordListenerStop()
		s.logger.Info().Msg("voice listener stopped")
	}
	s.send(voiceStatus(false))
}

// enqueueTranscription runs on the listener's worker goroutine. The send
// blocks until the run loop is ready, preserving worker emit order with no
// losses; closing unblocks it during teardown so the worker can exit.
func (s *Session) enqueueTranscription(text string) {
	select {
	case s.transcriptions <- text:
	case <-s.closing:
		s.logger.Debug().Str("text", text).Msg("transcription dropped, session closing")
	}
}

func (s *Session) handleTranscription(text string) {
	command, ok := s.deps.Gate.Extract(text)
	if !ok {
		s.logger.Debug().Str("text", text).Msg("no wake word, ignored")
		return
	}

	s.logger.Info().Str("command", command).Msg("wake word detected")
	s.send(transcription(text))
	s.dispatch(command)
}

// dispatch runs one command through the executor with the retry policy and
// the dispatch deadline, and relays the outcome as protocol messages.
func (s *Session) dispatch(command string) {
	s.send(streamStart())

	cfg := s.deps.Config
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DispatchTimeout)
	defer cancel()

	start := time.Now()
	reply, err := resilientExecute(ctx, s.executor, command, cfg.DispatchMaxAttempts, s.deps.IsTransient)
	elapsed := time.Since(start)

	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil):
		s.logger.Warn().Dur("elapsed", elapsed).Msg("dispatch timed out")
		observability.RecordDispatch("timeout", elapsed)
		s.send(errorMessage(timeoutReply))

	case err != nil:
		s.logger.Error().Err(err).Msg("dispatch failed")
		observability.RecordDispatch("error", elapsed)
		s.send(errorMessage(err.Error()))

	default:
		observability.RecordDispatch("ok", elapsed)
		s.send(streamDelta(reply))
		s.send(streamEnd())
	}
}

func resilientExecute(ctx context.Context, ex agent.Executor, command string, maxAttempts int, isTransient func(error) bool) (string, error) {
	return resilience.RetryText(func() (string, error) {
		return ex.Execute(ctx, command)
	}, maxAttempts, isTransient)
}

func (s *Session) send(msg any) {
	// All sends happen on the run loop goroutine, so no write lock is
	// needed; the socket has a single writer by construction.
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Warn().Err(err).Msg("websocket write failed")
	}
}
