// Package listener owns the capture/transcription pipeline for one voice
// session: a capture goroutine feeding the VAD segmenter, an unbounded
// utterance queue, and a worker goroutine calling the speech-to-text engine.
package listener

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/obsassist/voice-backend/internal/audio"
	"github.com/obsassist/voice-backend/internal/observability"
	"github.com/obsassist/voice-backend/internal/stt"
)

// NoiseFilter reports whether recognized text should be dropped as a
// non-speech artifact. The default rejects engine markers like "[BLANK_AUDIO]"
// that whisper emits for silence; the check is injected because the marker
// convention is engine-specific.
type NoiseFilter func(text string) bool

// DefaultNoiseFilter drops whisper-style bracketed markers.
func DefaultNoiseFilter(text string) bool {
	return strings.HasPrefix(text, "[")
}

// Config holds the dependencies for one Listener.
type Config struct {
	// Source delivers fixed-size audio blocks. Required. The listener takes
	// ownership and closes it when the capture goroutine exits.
	Source audio.FrameSource

	// Segmenter is the VAD state machine. Required. Only the capture
	// goroutine touches it.
	Segmenter *audio.Segmenter

	// Transcriber converts utterances to text. Required. The listener does
	// not close it; transcribers are shared across listener runs.
	Transcriber stt.Transcriber

	// SampleRate of the captured audio in Hz. Required.
	SampleRate int

	// OnTranscription is invoked from the worker goroutine with each
	// non-empty, non-noise transcription. Required.
	OnTranscription func(text string)

	// NoiseFilter drops engine artifacts. Defaults to DefaultNoiseFilter.
	NoiseFilter NoiseFilter

	Logger zerolog.Logger
}

// Listener runs the always-on mic pipeline. Lifecycle is Stopped until
// Start, Running until Stop; both goroutines are alive exactly while
// Running. A Listener cannot be restarted; sessions create a fresh one per
// voice_start.
type Listener struct {
	cfg     Config
	queue   *Queue
	running atomic.Bool
	stopped atomic.Bool
	wg      sync.WaitGroup
	done    chan struct{}
}

// New validates cfg and creates a stopped Listener.
func New(cfg Config) (*Listener, error) {
	if cfg.Source == nil {
		return nil, errors.New("listener: Source must not be nil")
	}
	if cfg.Segmenter == nil {
		return nil, errors.New("listener: Segmenter must not be nil")
	}
	if cfg.Transcriber == nil {
		return nil, errors.New("listener: Transcriber must not be nil")
	}
	if cfg.OnTranscription == nil {
		return nil, errors.New("listener: OnTranscription must not be nil")
	}
	if cfg.SampleRate <= 0 {
		return nil, errors.New("listener: SampleRate must be positive")
	}
	if cfg.NoiseFilter == nil {
		cfg.NoiseFilter = DefaultNoiseFilter
	}
	return &Listener{
		cfg:   cfg,
		queue: NewQueue(),
		done:  make(chan struct{}),
	}, nil
}

// Start begins capture and transcription. Calling Start on a running or
// already-stopped listener is a no-op.
func (l *Listener) Start() error {
	if l.stopped.Load() || !l.running.CompareAndSwap(false, true) {
		return nil
	}

	if err := l.cfg.Source.Start(); err != nil {
		// No goroutine ever runs for this listener, so the capture loop's
		// close never happens; release the device here or it stays open.
		if cerr := l.cfg.Source.Close(); cerr != nil {
			l.cfg.Logger.Warn().Err(cerr).Msg("close capture source")
		}
		l.running.Store(false)
		l.stopped.Store(true)
		return err
	}

	l.wg.Add(2)
	go l.captureLoop()
	go l.workerLoop()

	go func() {
		l.wg.Wait()
		close(l.done)
	}()

	l.cfg.Logger.Info().Msg("voice listener started")
	return nil
}

// Stop requests shutdown: it flips the running flag, aborts the device
// stream so a pending read unblocks, and enqueues the sentinel so the worker
// exits after draining already-queued utterances. Stop does not wait for an
// in-flight transcription to finish. Idempotent.
func (l *Listener) Stop() {
	if !l.running.CompareAndSwap(true, false) {
		return
	}
	l.stopped.Store(true)

	if err := l.cfg.Source.Abort(); err != nil {
		l.cfg.Logger.Warn().Err(err).Msg("abort capture stream")
	}
	l.queue.PushSentinel()

	l.cfg.Logger.Info().Msg("voice listener stopped")
}

// Running reports whether the pipeline is active.
func (l *Listener) Running() bool {
	return l.running.Load()
}

// Done is closed once both pipeline goroutines have exited.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

func (l *Listener) captureLoop() {
	defer l.wg.Done()
	defer func() {
		if err := l.cfg.Source.Close(); err != nil {
			l.cfg.Logger.Warn().Err(err).Msg("close capture source")
		}
	}()

	for l.running.Load() {
		block, err := l.cfg.Source.ReadBlock()
		if err != nil {
			if l.running.Load() {
				// Device failure, not a stop request. The listener stays
				// formally Running but captures nothing until restarted.
				l.cfg.Logger.Error().Err(err).Msg("capture stream error")
				observability.RecordError("device", "capture")
			}
			return
		}

		if utterance := l.cfg.Segmenter.Process(block); utterance != nil {
			observability.RecordUtteranceSegmented(float64(len(utterance)) / float64(l.cfg.SampleRate))
			l.queue.Push(utterance)
		}
	}
}

func (l *Listener) workerLoop() {
	defer l.wg.Done()

	for {
		utterance, ok := l.queue.Pop()
		if !ok {
			return
		}

		text, err := l.cfg.Transcriber.Transcribe(context.Background(), utterance, l.cfg.SampleRate)
		if err != nil {
			// One bad utterance never kills the worker.
			l.cfg.Logger.Error().Err(err).Msg("transcription error")
			observability.RecordError("engine", "transcription")
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" || l.cfg.NoiseFilter(text) {
			observability.RecordTranscription("filtered")
			continue
		}

		l.cfg.Logger.Debug().Str("text", text).Msg("heard")
		observability.RecordTranscription("ok")
		l.cfg.OnTranscription(text)
	}
}
