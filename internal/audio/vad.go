package audio

import "math"

// SegmenterConfig holds configuration for the utterance segmenter
type SegmenterConfig struct {
	SampleRate          int     // Samples per second (16000 for Whisper)
	SilenceRMSThreshold float64 // RMS at or below this counts as silence
	SilenceBlocks       int     // Consecutive silent blocks that commit an utterance
	MinUtteranceSamples int     // Utterances shorter than this are discarded
}

// DefaultSegmenterConfig returns the segmenter configuration matching the
// capture defaults: 0.5s blocks at 16kHz, 1.5s silence timeout, 0.5s minimum.
func DefaultSegmenterConfig() *SegmenterConfig {
	return &SegmenterConfig{
		SampleRate:          16000,
		SilenceRMSThreshold: 0.01,
		SilenceBlocks:       3,
		MinUtteranceSamples: 8000,
	}
}

// Segmenter turns a stream of fixed-size audio blocks into discrete
// utterances. It is a single-threaded state machine: Process must only be
// called from the capture goroutine.
//
// An utterance is committed when SilenceBlocks consecutive silent blocks
// arrive while speaking. The trailing silent blocks are included in the
// utterance so transcription does not chop the final word.
type Segmenter struct {
	config     *SegmenterConfig
	buffer     []float32
	silentRun  int
	isSpeaking bool
}

// NewSegmenter creates a new utterance segmenter
func NewSegmenter(config *SegmenterConfig) *Segmenter {
	if config == nil {
		config = DefaultSegmenterConfig()
	}
	return &Segmenter{config: config}
}

// Process classifies one block and returns a committed utterance, or nil if
// the block did not complete one. The returned slice is owned by the caller;
// the segmenter's internal buffer is reset on commit.
func (s *Segmenter) Process(block []float32) []float32 {
	level := RMS(block)

	if level > s.config.SilenceRMSThreshold {
		if !s.isSpeaking {
			s.isSpeaking = true
			s.silentRun = 0
		}
		s.buffer = append(s.buffer, block...)
		s.silentRun = 0
		return nil
	}

	if !s.isSpeaking {
		return nil
	}

	s.buffer = append(s.buffer, block...)
	s.silentRun++

	if s.silentRun < s.config.SilenceBlocks {
		return nil
	}

	utterance := s.buffer
	s.buffer = nil
	s.silentRun = 0
	s.isSpeaking = false

	if len(utterance) < s.config.MinUtteranceSamples {
		return nil // too short, likely a click or breath
	}
	return utterance
}

// IsSpeaking returns whether the segmenter is currently inside an utterance.
func (s *Segmenter) IsSpeaking() bool {
	return s.isSpeaking
}

// Reset clears all segmenter state, dropping any partially buffered speech.
func (s *Segmenter) Reset() {
	s.buffer = nil
	s.silentRun = 0
	s.isSpeaking = false
}

// RMS computes the root-mean-square energy of a block of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
