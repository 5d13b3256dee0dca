package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Errors
var (
	ErrNotCapturing       = errors.New("audio capture not started")
	ErrCaptureUnavailable = errors.New("no usable audio input device")
)

// AudioBuffer represents one frame of captured time-domain samples.
type AudioBuffer struct {
	Samples    []float32
	SampleRate int
}

// RMS returns the root-mean-square energy of the buffer.
func (b *AudioBuffer) RMS() float64 {
	if b == nil || len(b.Samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range b.Samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(b.Samples)))
}

// Capturer defines the interface for microphone capture.
type Capturer interface {
	// Start begins audio capture
	Start() error

	// Stop ends audio capture and releases the stream
	Stop() error

	// GetBuffer returns a copy of the most recent audio frame
	GetBuffer() (*AudioBuffer, error)

	// IsCapturing returns true if currently capturing audio
	IsCapturing() bool
}

// MicCapturer implements Capturer using PortAudio. The stream exclusively
// owns the device; switching devices means Stop then a fresh capturer.
type MicCapturer struct {
	isCapturing   bool
	stream        *portaudio.Stream
	buffer        *AudioBuffer
	bufferSize    int
	sampleRate    int
	channels      int
	deviceID      int // -1 selects the default input device
	bufferMutex   sync.Mutex
	amplification float32
}

// NewMicCapturer creates a capturer for the given input device.
// deviceID -1 selects the system default. Start acquires the device.
func NewMicCapturer(deviceID, bufferSize, sampleRate, channels int) *MicCapturer {
	return &MicCapturer{
		buffer: &AudioBuffer{
			Samples:    make([]float32, 0, bufferSize),
			SampleRate: sampleRate,
		},
		bufferSize:    bufferSize,
		sampleRate:    sampleRate,
		channels:      channels,
		deviceID:      deviceID,
		amplification: 1.0,
	}
}

// Start initializes PortAudio and starts the input stream. Every failure
// path tears PortAudio back down; only a successful Start leaves the
// context held, released again by Stop.
func (c *MicCapturer) Start() error {
	if c.isCapturing {
		return errors.New("audio capture already started")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	var err error
	if c.deviceID < 0 {
		c.stream, err = portaudio.OpenDefaultStream(
			c.channels, 0,
			float64(c.sampleRate),
			c.bufferSize/c.channels,
			c.processAudio,
		)
	} else {
		var dev *portaudio.DeviceInfo
		dev, err = inputDeviceByID(c.deviceID)
		if err != nil {
			portaudio.Terminate()
			return err
		}
		params := portaudio.LowLatencyParameters(dev, nil)
		params.Input.Channels = c.channels
		params.SampleRate = float64(c.sampleRate)
		params.FramesPerBuffer = c.bufferSize / c.channels
		c.stream, err = portaudio.OpenStream(params, c.processAudio)
	}
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	if err := c.stream.Start(); err != nil {
		c.stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	c.isCapturing = true
	return nil
}

// Stop ends capture and releases the stream and PortAudio.
func (c *MicCapturer) Stop() error {
	if !c.isCapturing {
		return ErrNotCapturing
	}

	if err := c.stream.Stop(); err != nil {
		return err
	}
	if err := c.stream.Close(); err != nil {
		return err
	}
	if err := portaudio.Terminate(); err != nil {
		return err
	}

	c.isCapturing = false
	return nil
}

// processAudio is the stream callback; it keeps only the latest frame.
func (c *MicCapturer) processAudio(in []float32) {
	c.bufferMutex.Lock()
	defer c.bufferMutex.Unlock()

	if c.channels > 1 {
		// Average multi-channel input down to mono.
		monoBuffer := make([]float32, len(in)/c.channels)
		for i := 0; i < len(monoBuffer); i++ {
			sum := float32(0)
			for ch := 0; ch < c.channels; ch++ {
				sum += in[i*c.channels+ch]
			}
			monoBuffer[i] = (sum / float32(c.channels)) * c.amplification
		}
		c.buffer.Samples = monoBuffer
	} else {
		c.buffer.Samples = make([]float32, len(in))
		for i, sample := range in {
			c.buffer.Samples[i] = sample * c.amplification
		}
	}
}

// GetBuffer returns a copy of the most recent audio frame.
func (c *MicCapturer) GetBuffer() (*AudioBuffer, error) {
	if !c.isCapturing {
		return nil, ErrNotCapturing
	}

	c.bufferMutex.Lock()
	defer c.bufferMutex.Unlock()

	bufferCopy := &AudioBuffer{
		Samples:    make([]float32, len(c.buffer.Samples)),
		SampleRate: c.buffer.SampleRate,
	}
	copy(bufferCopy.Samples, c.buffer.Samples)

	return bufferCopy, nil
}

// IsCapturing returns true if currently capturing audio.
func (c *MicCapturer) IsCapturing() bool {
	return c.isCapturing
}

// SetAmplification sets the input gain factor.
func (c *MicCapturer) SetAmplification(factor float32) {
	c.bufferMutex.Lock()
	defer c.bufferMutex.Unlock()

	if factor < 0.1 {
		factor = 0.1
	}
	c.amplification = factor
}
