package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	listenv1rest "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/obsassist/voice-backend/internal/resilience"
)

// Compile-time assertion that DeepgramTranscriber satisfies Transcriber.
var _ Transcriber = (*DeepgramTranscriber)(nil)

// DeepgramTranscriber sends utterances to Deepgram's pre-recorded REST API.
// Unlike a live-streaming integration, each committed utterance is one
// self-contained request, which matches the segmenter's output model.
// A circuit breaker sheds requests while the API is unreachable so a dead
// network does not stall the worker on every utterance.
type DeepgramTranscriber struct {
	client   *listenv1rest.Client
	model    string
	language string
	breaker  *resilience.Breaker
}

// NewDeepgramTranscriber creates a Deepgram-backed transcriber.
func NewDeepgramTranscriber(apiKey, model, language string) (*DeepgramTranscriber, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	rest := listenClient.NewREST(apiKey, &interfaces.ClientOptions{})
	return &DeepgramTranscriber{
		client:   listenv1rest.New(rest),
		model:    model,
		language: language,
		breaker:  resilience.NewBreaker("deepgram", 5, 30*time.Second),
	}, nil
}

// Transcribe encodes the utterance as 16-bit PCM WAV and submits it to the
// pre-recorded endpoint, returning the top alternative's transcript.
func (d *DeepgramTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	wavData, err := encodeWAV(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("deepgram: encode utterance: %w", err)
	}

	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.model,
		Language:    d.language,
		Punctuate:   true,
		SmartFormat: true,
	}

	var text string
	err = d.breaker.Call(func() error {
		res, err := d.client.FromStream(ctx, bytes.NewReader(wavData), options)
		if err != nil {
			return fmt.Errorf("deepgram: transcription request: %w", err)
		}
		if res != nil && len(res.Results.Channels) > 0 && len(res.Results.Channels[0].Alternatives) > 0 {
			text = strings.TrimSpace(res.Results.Channels[0].Alternatives[0].Transcript)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// Close is a no-op; the REST client holds no persistent connection.
func (d *DeepgramTranscriber) Close() error {
	return nil
}
