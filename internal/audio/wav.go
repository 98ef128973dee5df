package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVDevice 用 WAV 文件模拟麦克风输入，Realtime 为 true 时按采样率节流读取。
type WAVDevice struct {
	Path     string
	Realtime bool
}

// Open decodes the WAV header. A missing file counts as "no device".
func (d WAVDevice) Open(ctx context.Context) (Stream, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("open audio input %s: %w", d.Path, ErrPermissionDenied)
		}
		return nil, fmt.Errorf("open audio input %s: %w", d.Path, err)
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("audio input %s is not a valid wav file", d.Path)
	}
	if err := decoder.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek pcm data in %s: %w", d.Path, err)
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}

	return &wavStream{
		file:     f,
		decoder:  decoder,
		rate:     int(decoder.SampleRate),
		channels: int(decoder.NumChans),
		scale:    float32(int64(1) << (bitDepth - 1)),
		realtime: d.Realtime,
		closed:   make(chan struct{}),
	}, nil
}

type wavStream struct {
	file     *os.File
	decoder  *wav.Decoder
	rate     int
	channels int
	scale    float32
	realtime bool

	started time.Time
	read    int64

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *wavStream) SampleRate() int { return s.rate }
func (s *wavStream) Channels() int   { return s.channels }

func (s *wavStream) Read(p []float32) (int, error) {
	select {
	case <-s.closed:
		return 0, io.EOF
	default:
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: s.channels, SampleRate: s.rate},
		Data:   make([]int, len(p)),
	}
	n, err := s.decoder.PCMBuffer(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("decode wav pcm: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	for i := 0; i < n; i++ {
		p[i] = float32(buf.Data[i]) / s.scale
	}

	if s.realtime {
		if err := s.pace(n); err != nil {
			return n, err
		}
	}
	return n, nil
}

// pace sleeps until the wall clock catches up with the audio already read.
func (s *wavStream) pace(n int) error {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	s.read += int64(n)
	perSecond := int64(s.rate * s.channels)
	if perSecond <= 0 {
		return nil
	}
	due := s.started.Add(time.Duration(s.read * int64(time.Second) / perSecond))
	wait := time.Until(due)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-s.closed:
		return io.EOF
	}
}

func (s *wavStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.file.Close()
	})
	return err
}

// WriteWAV stores mono PCM16 samples as a 16-bit WAV file.
func WriteWAV(path string, samples []int16, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav %s: %w", path, err)
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish wav %s: %w", path, err)
	}
	return nil
}
