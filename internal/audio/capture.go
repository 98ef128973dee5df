package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
)

const (
	// TargetSampleRate 上行音频固定为16kHz单声道
	TargetSampleRate = 16000
	// DefaultFrameSize 每帧采样点数
	DefaultFrameSize = 4096

	readChunk = 1024
)

// ErrPermissionDenied 用户拒绝授权或没有可用的输入设备，不自动重试。
var ErrPermissionDenied = errors.New("audio input permission denied or no device")

var log = logrus.WithField("component", "audio")

// Device opens an input stream, the equivalent of getUserMedia.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream yields interleaved float samples in [-1,1] at its native rate.
// Close stops the underlying tracks and unblocks pending reads.
type Stream interface {
	SampleRate() int
	Channels() int
	Read(p []float32) (int, error)
	Close() error
}

// NoDevice reports that no input device is configured.
type NoDevice struct{}

// Open always fails with ErrPermissionDenied.
func (NoDevice) Open(context.Context) (Stream, error) {
	return nil, fmt.Errorf("no audio input configured: %w", ErrPermissionDenied)
}

// Capture turns a Device into a stream of fixed-size AudioFrames.
type Capture struct {
	Device     Device
	FrameSize  int
	TargetRate int
	// Throttle 两次发帧的最小间隔，0 表示不限速
	Throttle time.Duration

	now func() time.Time
}

// NewCapture creates a capture with the default frame size and rate.
func NewCapture(device Device, frameSize int, throttle time.Duration) *Capture {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &Capture{
		Device:     device,
		FrameSize:  frameSize,
		TargetRate: TargetSampleRate,
		Throttle:   throttle,
		now:        time.Now,
	}
}

// Handle owns one active capture. Stop releases everything it holds.
type Handle struct {
	stream Stream
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// Start opens the device and begins emitting frames to onFrame from a
// background goroutine. Open failures are returned as-is and not retried.
func (c *Capture) Start(ctx context.Context, onFrame func(interview.AudioFrame)) (*Handle, error) {
	if c.Device == nil {
		return nil, fmt.Errorf("capture has no device: %w", ErrPermissionDenied)
	}

	stream, err := c.Device.Open(ctx)
	if err != nil {
		return nil, err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		stream: stream,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	log.Infof("[capture] started native_rate=%d channels=%d frame=%d", stream.SampleRate(), stream.Channels(), c.frameSize())
	go c.pump(pumpCtx, h, onFrame)
	return h, nil
}

func (c *Capture) frameSize() int {
	if c.FrameSize <= 0 {
		return DefaultFrameSize
	}
	return c.FrameSize
}

func (c *Capture) pump(ctx context.Context, h *Handle, onFrame func(interview.AudioFrame)) {
	defer close(h.done)

	channels := h.stream.Channels()
	if channels < 1 {
		channels = 1
	}
	target := c.TargetRate
	if target <= 0 {
		target = TargetSampleRate
	}
	now := c.now
	if now == nil {
		now = time.Now
	}

	resampler := NewResampler(h.stream.SampleRate(), target)
	size := c.frameSize()
	window := make([]float32, 0, size)
	raw := make([]float32, readChunk*channels)
	var lastEmit time.Time

	for {
		n, err := h.stream.Read(raw)
		if n > 0 {
			mono := resampler.Process(downmix(raw[:n-n%channels], channels))
			for len(mono) > 0 {
				take := size - len(window)
				if take > len(mono) {
					take = len(mono)
				}
				window = append(window, mono[:take]...)
				mono = mono[take:]

				if len(window) < size {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				ts := now()
				if c.Throttle <= 0 || lastEmit.IsZero() || ts.Sub(lastEmit) >= c.Throttle {
					onFrame(interview.AudioFrame{Samples: FloatToPCM16(window)})
					lastEmit = ts
				}
				window = window[:0]
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				h.setErr(err)
				log.Warnf("[capture] stream read failed: %v", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Stop disconnects the pipeline, closes the stream and waits for the pump
// to exit. No frame is delivered after Stop returns. Safe to call repeatedly.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.cancel()
		if err := h.stream.Close(); err != nil {
			log.Warnf("[capture] close stream failed: %v", err)
		}
		<-h.done
		log.Info("[capture] stopped")
	})
}

// Done is closed once the stream has ended or Stop was called.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the read error that ended the capture, if any.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}
