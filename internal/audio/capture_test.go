package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
)

type fakeStream struct {
	rate     int
	channels int
	remain   int
	value    float32
	block    bool

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

func newFakeStream(rate, channels, samples int, value float32) *fakeStream {
	return &fakeStream{rate: rate, channels: channels, remain: samples, value: value, closeCh: make(chan struct{})}
}

func (s *fakeStream) SampleRate() int { return s.rate }
func (s *fakeStream) Channels() int   { return s.channels }

func (s *fakeStream) Read(p []float32) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.EOF
	}
	if s.remain == 0 {
		block := s.block
		s.mu.Unlock()
		if block {
			<-s.closeCh
		}
		return 0, io.EOF
	}
	n := len(p)
	if n > s.remain {
		n = s.remain
	}
	s.remain -= n
	s.mu.Unlock()
	for i := 0; i < n; i++ {
		p[i] = s.value
	}
	return n, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.closeCh)
	}
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeDevice struct {
	stream *fakeStream
	err    error
}

func (d *fakeDevice) Open(context.Context) (Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

type frameSink struct {
	mu     sync.Mutex
	frames []interview.AudioFrame
}

func (s *frameSink) add(f interview.AudioFrame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

func (s *frameSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestCaptureEmitsFixedSizeFrames(t *testing.T) {
	stream := newFakeStream(16000, 1, 4096*3+100, 0.5)
	capture := NewCapture(&fakeDevice{stream: stream}, 4096, 0)
	sink := &frameSink{}

	h, err := capture.Start(context.Background(), sink.add)
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}
	<-h.Done()
	h.Stop()

	if sink.count() != 3 {
		t.Fatalf("expected 3 full frames, got %d", sink.count())
	}
	for _, f := range sink.frames {
		if len(f.Samples) != 4096 {
			t.Fatalf("unexpected frame length %d", len(f.Samples))
		}
		if f.Samples[0] != 16383 {
			t.Fatalf("unexpected sample value %d", f.Samples[0])
		}
	}
	if !stream.isClosed() {
		t.Fatal("stream should be closed after Stop")
	}
}

func TestCaptureResamplesStereo48k(t *testing.T) {
	// one second of 48kHz stereo becomes ~16000 mono samples
	stream := newFakeStream(48000, 2, 48000*2, 0.25)
	capture := NewCapture(&fakeDevice{stream: stream}, 1000, 0)
	sink := &frameSink{}

	h, err := capture.Start(context.Background(), sink.add)
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}
	<-h.Done()
	h.Stop()

	if got := sink.count(); got < 15 || got > 16 {
		t.Fatalf("expected ~16 frames of 1000 samples, got %d", got)
	}
}

func TestCaptureThrottleDropsFrames(t *testing.T) {
	stream := newFakeStream(16000, 1, 100*10, 0.1)
	capture := NewCapture(&fakeDevice{stream: stream}, 100, 256*time.Millisecond)
	clock := time.Unix(0, 0)
	capture.now = func() time.Time {
		clock = clock.Add(100 * time.Millisecond)
		return clock
	}
	sink := &frameSink{}

	h, err := capture.Start(context.Background(), sink.add)
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}
	<-h.Done()
	h.Stop()

	// frames at t=100,400,700,1000 ms pass the 256ms gate
	if got := sink.count(); got != 4 {
		t.Fatalf("expected 4 throttled frames, got %d", got)
	}
}

func TestCaptureStopReleasesBlockedStream(t *testing.T) {
	stream := newFakeStream(16000, 1, 0, 0)
	stream.block = true
	capture := NewCapture(&fakeDevice{stream: stream}, 4096, 0)

	h, err := capture.Start(context.Background(), func(interview.AudioFrame) {})
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		h.Stop()
		h.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if !stream.isClosed() {
		t.Fatal("stream should be closed")
	}
}

func TestCapturePermissionDenied(t *testing.T) {
	capture := NewCapture(&fakeDevice{err: ErrPermissionDenied}, 0, 0)
	if _, err := capture.Start(context.Background(), func(interview.AudioFrame) {}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}

	if _, err := NewCapture(NoDevice{}, 0, 0).Start(context.Background(), func(interview.AudioFrame) {}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied for NoDevice, got %v", err)
	}
}

func TestWAVDeviceReadsPCM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answer.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	data := make([]int, 5000)
	for i := range data {
		data[i] = 16384
	}
	buf := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: 1, SampleRate: 16000}, Data: data, SourceBitDepth: 16}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	f.Close()

	capture := NewCapture(WAVDevice{Path: path}, 1000, 0)
	sink := &frameSink{}
	h, err := capture.Start(context.Background(), sink.add)
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}
	<-h.Done()
	h.Stop()

	if sink.count() != 5 {
		t.Fatalf("expected 5 frames, got %d", sink.count())
	}
	if s := sink.frames[0].Samples[0]; s != 16383 {
		t.Fatalf("expected half-scale sample, got %d", s)
	}
}

func TestWAVDeviceMissingFile(t *testing.T) {
	_, err := WAVDevice{Path: filepath.Join(t.TempDir(), "missing.wav")}.Open(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestWriteWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turn.wav")
	samples := make([]int16, 2000)
	for i := range samples {
		samples[i] = -8192
	}
	if err := WriteWAV(path, samples, 16000); err != nil {
		t.Fatalf("write: %v", err)
	}

	capture := NewCapture(WAVDevice{Path: path}, 500, 0)
	sink := &frameSink{}
	h, err := capture.Start(context.Background(), sink.add)
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}
	<-h.Done()
	h.Stop()

	if sink.count() != 4 {
		t.Fatalf("expected 4 frames, got %d", sink.count())
	}
	if s := sink.frames[0].Samples[0]; s != -8192 {
		t.Fatalf("expected sample to survive the round trip, got %d", s)
	}
}
