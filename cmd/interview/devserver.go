package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/ai-interview/client/internal/config"
	"github.com/zhouzirui/ai-interview/client/internal/devserver"
	"github.com/zhouzirui/ai-interview/client/internal/service/ai"
	"github.com/zhouzirui/ai-interview/client/internal/service/speech"
)

func newDevServerCmd(cfg *config.Config) *cobra.Command {
	var dumpDir string

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "启动本地模拟面试服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := devserver.Options{SampleRate: cfg.Audio.SampleRate}

			if cfg.AI.Enabled() {
				svc, err := ai.NewService(ctx, cfg.AI)
				if err != nil {
					logrus.Warnf("failed to initialize AI service: %v", err)
					logrus.Warn("continuing with scripted questions - 请检查 Ark 模型相关环境变量")
				} else {
					opts.Interviewer = svc
					opts.Evaluator = svc
					logrus.Info("AI service initialized successfully")
				}
			} else {
				logrus.Info("Ark 凭证未配置，使用预设题目")
			}
			if opts.Interviewer == nil && len(cfg.DevServer.Questions) > 0 {
				opts.Interviewer = devserver.ScriptedInterviewer{Questions: cfg.DevServer.Questions}
			}

			if cfg.Speech.Enabled() {
				opts.Speech = speech.NewClient(speech.Config{
					AppID:       cfg.Speech.AppID,
					AccessToken: cfg.Speech.AccessToken,
					ResourceID:  cfg.Speech.ResourceID,
					URL:         cfg.Speech.URL,
					Language:    cfg.Speech.Language,
					SampleRate:  cfg.Audio.SampleRate,
					Timeout:     cfg.Speech.Timeout,
				})
				opts.SpeechTimeout = cfg.Speech.Timeout
				logrus.Info("Speech recognition initialized successfully")
			} else {
				logrus.Info("语音服务凭证未配置，使用预设回答模拟识别")
			}

			if cfg.DevServer.AudioDump {
				if dumpDir == "" {
					dumpDir = filepath.Join(os.TempDir(), "interview_audio")
				}
				if err := os.MkdirAll(dumpDir, 0o755); err != nil {
					return err
				}
				opts.DumpDir = dumpDir
				logrus.Infof("每轮音频将保存到 %s", dumpDir)
			}

			return serve(ctx, cfg.DevServer.Addr, devserver.New(opts).Routes(), "dev server")
		},
	}
	cmd.Flags().StringVar(&dumpDir, "dump-dir", "", "DEVSERVER_AUDIO_DUMP 开启时的音频保存目录")
	return cmd
}
