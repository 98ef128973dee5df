package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/ai-interview/client/internal/api"
	"github.com/zhouzirui/ai-interview/client/internal/config"
	"github.com/zhouzirui/ai-interview/client/internal/report"
	"github.com/zhouzirui/ai-interview/client/internal/store"
)

func newReportCmd(cfg *config.Config) *cobra.Command {
	var (
		resumePath string
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "用本地保存的问答历史重新生成面试报告",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := store.Open(ctx, cfg.Session.StatePath)
			if err != nil {
				return err
			}
			defer st.Close()

			sid, err := st.SessionID(ctx)
			if err != nil {
				return err
			}
			if sid == "" {
				return errors.New("no saved session, run an interview first")
			}
			history, err := st.History(ctx, sid)
			if err != nil {
				return err
			}

			var resume string
			if resumePath != "" {
				data, err := os.ReadFile(resumePath)
				if err != nil {
					return fmt.Errorf("read resume: %w", err)
				}
				resume = string(data)
			}

			assembler := report.NewAssembler(api.NewClient(cfg.Server.BaseURL, cfg.Server.HTTPTimeout, nil))
			// 离线重建时没有表情样本
			req := assembler.Assemble(ctx, history, nil, resume)

			out := json.NewEncoder(cmd.OutOrStdout())
			out.SetIndent("", "  ")
			if dryRun {
				return out.Encode(req)
			}
			rep, err := assembler.Submit(ctx, req)
			if err != nil {
				return err
			}
			return out.Encode(rep)
		},
	}
	cmd.Flags().StringVar(&resumePath, "resume", "", "简历文本文件")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只打印报告请求，不提交")
	return cmd
}
