package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/ai-interview/client/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:           "interview",
		Short:         "AI 模拟面试客户端",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file
			if err := godotenv.Load(); err != nil {
				logrus.Debugf("no .env file loaded: %v", err)
			}

			loaded, err := config.Load()
			if err != nil {
				return err
			}
			*cfg = *loaded

			setupLogging(cfg.LogLevel)
			return nil
		},
	}
	root.AddCommand(
		newRunCmd(cfg),
		newDevServerCmd(cfg),
		newReportCmd(cfg),
		newCaptureCmd(cfg),
	)
	return root
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("invalid LOG_LEVEL %q, using info", level)
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}
