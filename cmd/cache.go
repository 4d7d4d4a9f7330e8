package cmd

import (
	"context"
	"errors"
	"fmt"

	"audioportal/cache"
	"audioportal/logger"

	"github.com/spf13/cobra"
)

var cacheFlush bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Redis 转写缓存检查",
	Long:  `测试 Redis 连接并进行基本读写操作，显示缓存的转写条数；--flush 清除所有缓存的转写。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if cfg.RedisHost == "" {
			return errors.New("REDIS_HOST is not set; the transcription cache is disabled")
		}
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		client, err := cache.NewRedisClient(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("Error closing Redis connection", logger.ErrorField(err))
			}
		}()

		if err := cache.Probe(ctx, client); err != nil {
			return fmt.Errorf("redis probe: %w", err)
		}
		fmt.Println("Redis读写测试成功！")

		tc := cache.NewTranscriptionCache(client, cfg.TranscriptionCacheTTL)
		count, err := tc.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Cached transcriptions: %d\n", count)

		if cacheFlush {
			removed, err := tc.Flush(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d cached transcriptions\n", removed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.Flags().BoolVar(&cacheFlush, "flush", false, "清除缓存的转写")
}
