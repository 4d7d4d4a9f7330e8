package cmd

import (
	"context"

	"audioportal/bootstrap"
	"audioportal/logger"
	"audioportal/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动音频门户服务器",
	Long:  `启动 HTTP 服务器，提供上传、元数据、转写 API 以及 Web 界面`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	logger.Info("Starting audio portal",
		logger.String("addr", cfg.ServerAddr),
		logger.String("blobBackend", cfg.BlobBackend),
		logger.String("transcriber", cfg.Transcriber))

	handler := server.NewAPIHandler(app.Service, app.Blobs, app.Hub)
	return server.Start(cfg, server.NewRouter(cfg, handler))
}
