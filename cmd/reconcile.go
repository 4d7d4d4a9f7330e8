package cmd

import (
	"context"
	"fmt"
	"time"

	"audioportal/bootstrap"
	"audioportal/logger"
	"audioportal/model"

	"github.com/spf13/cobra"
)

var reconcileRetry bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "列出未完成转写的音频记录",
	Long:  `列出停留在 recorded、transcribing 或 transcription_failed 状态且尚无元数据的记录，可选择重新转写。
处于 transcribing 状态且最近一次更新未超过 TRANSCRIPTION_TIMEOUT 加一分钟的记录视为仍在处理，不会列出也不会重试。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		app, err := bootstrap.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		stalled, err := app.Service.Stalled(ctx)
		if err != nil {
			return err
		}
		if len(stalled) == 0 {
			fmt.Println("No stalled records.")
			return nil
		}
		fmt.Println(stalledTable(stalled))

		if !reconcileRetry {
			return nil
		}
		failed := 0
		for _, record := range stalled {
			updated, err := app.Service.RetryTranscription(ctx, record.ID)
			if err != nil {
				failed++
				logger.Warn("Retry failed", logger.String("id", record.ID), logger.ErrorField(err))
				continue
			}
			fmt.Printf("%s -> %s\n", updated.ID, updated.Status)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d retries failed", failed, len(stalled))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().BoolVar(&reconcileRetry, "retry", false, "重新转写所有停滞的记录")
	reconcileCmd.Example = `  # 查看停滞的记录
  audioportal reconcile

  # 重新转写
  audioportal reconcile --retry`
}

func stalledTable(records []*model.AudioRecord) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			truncate(r.Filename, 40),
			r.Status,
			truncate(r.LastError, 60),
			r.UploadTimestamp.Local().Format(time.RFC3339),
		})
	}
	return renderTable(
		[]string{"ID", "Filename", "Status", "Last error", "Uploaded"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}
