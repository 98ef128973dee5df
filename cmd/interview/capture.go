package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/ai-interview/client/internal/audio"
	"github.com/zhouzirui/ai-interview/client/internal/config"
	"github.com/zhouzirui/ai-interview/client/internal/devserver"
	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
)

func newCaptureCmd(cfg *config.Config) *cobra.Command {
	var (
		input   string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "检查音频输入：分帧后输出响度、时长与音高",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				input = cfg.Audio.InputPath
			}
			if input == "" {
				return fmt.Errorf("请通过 --audio 或 AUDIO_INPUT 指定 WAV 文件")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var (
				frames  int
				samples []int16
			)
			capture := audio.NewCapture(audio.WAVDevice{Path: input}, cfg.Audio.FrameSize, 0)
			h, err := capture.Start(ctx, func(f interview.AudioFrame) {
				frames++
				samples = append(samples, f.Samples...)
			})
			if err != nil {
				return err
			}
			defer h.Stop()

			select {
			case <-h.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
			if err := h.Err(); err != nil {
				return err
			}

			features := devserver.AnalyzeVoice(samples, audio.TargetSampleRate, "")
			fmt.Fprintf(cmd.OutOrStdout(), "frames=%d frame_size=%d\n%s\n", frames, cfg.Audio.FrameSize, features)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "audio", "", "WAV 文件路径，默认使用 AUDIO_INPUT")
	cmd.Flags().DurationVar(&timeout, "timeout", 45*time.Second, "读取超时时间")
	return cmd
}
