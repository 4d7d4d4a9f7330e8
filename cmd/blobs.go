package cmd

import (
	"context"
	"fmt"
	"sort"

	"audioportal/bootstrap"
	"audioportal/storage"

	"github.com/spf13/cobra"
)

var blobsOrphans bool

var blobsCmd = &cobra.Command{
	Use:   "blobs",
	Short: "查看存储的音频和封面文件",
	Long:  `列出 Blob 存储（本地目录或 MinIO 存储桶）中的所有文件及统计信息；--orphans 只显示没有被任何记录引用的文件。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		var objects []storage.ObjectInfo
		if blobsOrphans {
			app, err := bootstrap.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			if objects, err = app.Service.Orphans(ctx); err != nil {
				return err
			}
		} else {
			// Listing everything needs only the blob store.
			store, err := bootstrap.NewBlobStore(ctx, cfg)
			if err != nil {
				return err
			}
			if objects, err = store.List(ctx); err != nil {
				return err
			}
		}

		if len(objects) == 0 {
			fmt.Println("No objects found.")
			return nil
		}
		fmt.Println(objectTable(objects))
		stats := storage.Summarize(objects)
		fmt.Printf("%d objects, %s total, last modified %s\n",
			stats.TotalObjects, storage.FormatSize(stats.TotalSize),
			stats.LastModified.Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(blobsCmd)
	blobsCmd.Flags().BoolVar(&blobsOrphans, "orphans", false, "只显示未被引用的文件")
	blobsCmd.Example = `  # 列出所有文件
  audioportal blobs

  # 查找孤儿文件
  audioportal blobs --orphans`
}

func objectTable(objects []storage.ObjectInfo) string {
	sorted := append([]storage.ObjectInfo(nil), objects...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	rows := make([][]string, 0, len(sorted))
	for _, obj := range sorted {
		rows = append(rows, []string{
			obj.Path,
			storage.FormatSize(obj.Size),
			obj.ContentType,
			obj.LastModified.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return renderTable(
		[]string{"Path", "Size", "Type", "Modified"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
	)
}
