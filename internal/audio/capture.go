package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// FrameSource delivers fixed-size blocks of mono float32 audio from an input
// device. ReadBlock blocks until a full block has been captured; Abort
// unblocks a pending ReadBlock promptly so a stop request never waits for a
// natural end of stream.
type FrameSource interface {
	Start() error
	ReadBlock() ([]float32, error)
	Abort() error
	Close() error
}

// CaptureSource is a FrameSource backed by the default PortAudio input
// device. It owns the device handle for the lifetime of one listener run.
type CaptureSource struct {
	sampleRate int
	blockSize  int
	buffer     []float32
	stream     *portaudio.Stream
}

// NewCaptureSource initializes PortAudio and opens the default input device
// at the given rate with blockSize samples per read. Close must be called to
// release the device and terminate PortAudio.
func NewCaptureSource(sampleRate, blockSize int) (*CaptureSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("capture: initialize portaudio: %w", err)
	}

	buffer := make([]float32, blockSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), blockSize, buffer)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("capture: open input stream: %w", err)
	}

	return &CaptureSource{
		sampleRate: sampleRate,
		blockSize:  blockSize,
		buffer:     buffer,
		stream:     stream,
	}, nil
}

// Start begins capturing from the device.
func (c *CaptureSource) Start() error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("capture: start stream: %w", err)
	}
	return nil
}

// ReadBlock blocks until one full block has been captured and returns a copy
// of it. The internal buffer is reused across calls.
func (c *CaptureSource) ReadBlock() ([]float32, error) {
	if err := c.stream.Read(); err != nil {
		return nil, fmt.Errorf("capture: read stream: %w", err)
	}
	block := make([]float32, c.blockSize)
	copy(block, c.buffer)
	return block, nil
}

// Abort stops the stream without draining buffered audio, unblocking any
// pending ReadBlock.
func (c *CaptureSource) Abort() error {
	if err := c.stream.Abort(); err != nil {
		return fmt.Errorf("capture: abort stream: %w", err)
	}
	return nil
}

// Close releases the device and terminates PortAudio.
func (c *CaptureSource) Close() error {
	err := c.stream.Close()
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	if err != nil {
		return fmt.Errorf("capture: close: %w", err)
	}
	return nil
}
