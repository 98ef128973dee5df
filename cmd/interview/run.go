package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/ai-interview/client/internal/api"
	"github.com/zhouzirui/ai-interview/client/internal/audio"
	"github.com/zhouzirui/ai-interview/client/internal/config"
	"github.com/zhouzirui/ai-interview/client/internal/handler"
	"github.com/zhouzirui/ai-interview/client/internal/metrics"
	"github.com/zhouzirui/ai-interview/client/internal/report"
	"github.com/zhouzirui/ai-interview/client/internal/session"
	"github.com/zhouzirui/ai-interview/client/internal/store"
	"github.com/zhouzirui/ai-interview/client/internal/transport"
	"github.com/zhouzirui/ai-interview/client/internal/vision"
)

func newRunCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "连接面试服务并启动本地控制接口",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runClient(ctx, cfg)
		},
	}
}

func runClient(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()

	opts := transport.DefaultOptions()
	opts.MaxRetries = cfg.Session.ConnectRetries
	conn := transport.NewClient(cfg.Server.WebSocketURL(), opts)
	remote := api.NewClient(cfg.Server.BaseURL, cfg.Server.HTTPTimeout, m)

	var device audio.Device = audio.NoDevice{}
	if cfg.Audio.InputPath != "" {
		device = audio.WAVDevice{Path: cfg.Audio.InputPath, Realtime: true}
	} else {
		logrus.Warn("AUDIO_INPUT 未配置，作答时将提示麦克风不可用")
	}

	st, err := store.Open(ctx, cfg.Session.StatePath)
	if err != nil {
		return err
	}
	defer st.Close()

	sessionOpts := session.Options{
		Transport:    conn,
		Remote:       remote,
		Capture:      audio.NewCapture(device, cfg.Audio.FrameSize, cfg.Audio.Throttle),
		Recorder:     st,
		Metrics:      m,
		Debounce:     cfg.Session.Debounce,
		StartTimeout: cfg.Session.StartTimeout,
	}
	if cfg.Vision.Enabled() {
		sessionOpts.Sampler = vision.NewSampler(&vision.DirFrameSource{Dir: cfg.Vision.CameraDir}, remote, cfg.Vision.Interval)
		logrus.Infof("表情采样已开启 dir=%s", cfg.Vision.CameraDir)
	}

	orch := session.New(sessionOpts)
	defer orch.Close()

	router := handler.NewRouter(orch, report.NewAssembler(remote), m)
	logrus.Infof("interview server %s (ws %s)", cfg.Server.BaseURL, cfg.Server.WebSocketURL())
	return serve(ctx, cfg.Control.Addr, router, "interview client")
}
