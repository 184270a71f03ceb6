// This file contains the whisper.cpp-backed transcriber. The whisper.cpp
// static library (libwhisper.a) and headers must be available at link time
// via LIBRARY_PATH and C_INCLUDE_PATH.

package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that WhisperTranscriber satisfies Transcriber.
var _ Transcriber = (*WhisperTranscriber)(nil)

// WhisperTranscriber runs speech-to-text locally through the whisper.cpp CGO
// bindings. The model is loaded once at construction and shared across calls;
// each Transcribe creates its own processing context, so concurrent calls
// from different listeners do not interfere.
type WhisperTranscriber struct {
	model    whisperlib.Model
	language string
}

// NewWhisperTranscriber loads the whisper.cpp model from the given file path.
// The caller must call Close when the transcriber is no longer needed.
func NewWhisperTranscriber(modelPath, language string) (*WhisperTranscriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	if language == "" {
		language = "en"
	}
	return &WhisperTranscriber{model: model, language: language}, nil
}

// Transcribe runs the model over one utterance and joins the recognized
// segments into a single trimmed string.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if sampleRate != whisperlib.SampleRate {
		return "", fmt.Errorf("whisper: unsupported sample rate %d (model expects %d)", sampleRate, whisperlib.SampleRate)
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: new context: %w", err)
	}
	if err := wctx.SetLanguage(w.language); err != nil {
		return "", fmt.Errorf("whisper: set language %q: %w", w.language, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process: %w", err)
	}

	var sb strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: next segment: %w", err)
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.TrimSpace(segment.Text))
	}

	return strings.TrimSpace(sb.String()), nil
}

// Close releases the whisper model.
func (w *WhisperTranscriber) Close() error {
	if w.model != nil {
		return w.model.Close()
	}
	return nil
}
