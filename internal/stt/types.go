package stt

import "context"

// Transcriber converts one utterance of mono float32 audio into text.
// Implementations may be slow; callers run them off the capture path.
type Transcriber interface {
	// Transcribe returns the recognized text for the given samples,
	// trimmed of surrounding whitespace. An empty string with a nil error
	// means the engine recognized nothing.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)

	// Close releases engine resources (models, HTTP clients).
	Close() error
}
