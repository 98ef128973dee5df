// Package vision 定时采集摄像头画面并交给远端识别表情。
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultInterval 与网页端一致，每2秒采一帧
const DefaultInterval = 2000 * time.Millisecond

// ErrNoFrames 目录中没有可用的图片
var ErrNoFrames = errors.New("no camera frames available")

var log = logrus.WithField("component", "vision")

// FrameSource yields JPEG frames, standing in for the camera.
type FrameSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// Detector returns the dominant emotion label for a data URL image.
type Detector interface {
	DetectFaceEmotion(ctx context.Context, dataURL string) (string, error)
}

// Sampler posts one frame per Interval to the detector.
type Sampler struct {
	Source   FrameSource
	Detector Detector
	Interval time.Duration
}

// NewSampler creates a sampler; a non-positive interval uses DefaultInterval.
func NewSampler(source FrameSource, detector Detector, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sampler{Source: source, Detector: detector, Interval: interval}
}

// Run samples until ctx is done. Failures are logged and skipped.
func (s *Sampler) Run(ctx context.Context, sink func(label string)) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Infof("[vision] sampling every %s", s.Interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			label, err := s.sample(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Debugf("[vision] sample skipped: %v", err)
				}
				continue
			}
			if label != "" && ctx.Err() == nil {
				sink(label)
			}
		}
	}
}

func (s *Sampler) sample(ctx context.Context) (string, error) {
	frame, err := s.Source.Next(ctx)
	if err != nil {
		return "", err
	}
	return s.Detector.DetectFaceEmotion(ctx, DataURL(frame))
}

// DataURL encodes a JPEG frame the way a canvas snapshot does.
func DataURL(jpeg []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}

// DirFrameSource cycles through the JPEG files of a directory in name order.
type DirFrameSource struct {
	Dir string

	mu    sync.Mutex
	files []string
	next  int
}

// Next returns the next frame, rescanning the directory once per cycle.
func (d *DirFrameSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.next >= len(d.files) {
		files, err := listJPEG(d.Dir)
		if err != nil {
			return nil, err
		}
		d.files = files
		d.next = 0
	}
	if len(d.files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFrames, d.Dir)
	}

	path := d.files[d.next]
	d.next++
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", path, err)
	}
	return data, nil
}

func listJPEG(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan camera dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
