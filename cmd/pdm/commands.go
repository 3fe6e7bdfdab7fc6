package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bitfantasy/pdm/internal/pdm/repository"
	"github.com/bitfantasy/pdm/internal/pdm/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "建表并创建索引",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(false)
			if err != nil {
				return err
			}
			defer a.close()

			if err := repository.Migrate(a.db); err != nil {
				return err
			}
			a.log.Info("migration finished")
			return nil
		},
	}
}

// 默认前缀：组件、零件、外购件
var seedPrefixes = []service.CreatePrefixRequest{
	{Name: "AAA", Description: "组件", CodeType: "assembly"},
	{Name: "BBB", Description: "零件", CodeType: "part"},
	{Name: "CCC", Description: "外购件", CodeType: "purchased"},
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "写入默认编码前缀，已存在的跳过",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			prefixes, err := seedPrefixList(ctx, a.svc.Prefix)
			if err != nil {
				return err
			}
			return seedSampleTree(ctx, a.svc, prefixes)
		},
	}
}

// seedPrefixList 按名称补齐默认前缀，返回 名称→ID
func seedPrefixList(ctx context.Context, prefixes *service.PrefixService) (map[string]string, error) {
	existing, err := prefixes.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(existing))
	for _, p := range existing {
		ids[p.Name] = p.ID
	}

	for i := range seedPrefixes {
		req := seedPrefixes[i]
		if _, ok := ids[req.Name]; ok {
			zap.L().Info("prefix exists, skipped", zap.String("name", req.Name))
			continue
		}
		p, err := prefixes.Create(ctx, &req)
		if err != nil {
			return nil, fmt.Errorf("seed prefix %s: %w", req.Name, err)
		}
		ids[p.Name] = p.ID
		zap.L().Info("prefix created", zap.String("name", p.Name), zap.String("id", p.ID))
	}
	return ids, nil
}

const sampleTreeName = "示例整机"

// seedSampleTree 生成几个已启用编码并搭一棵示例树，树已存在则跳过
func seedSampleTree(ctx context.Context, svc *service.Services, prefixes map[string]string) error {
	trees, err := svc.Tree.List(ctx, "")
	if err != nil {
		return err
	}
	for _, t := range trees {
		if t.Name == sampleTreeName {
			zap.L().Info("sample tree exists, skipped")
			return nil
		}
	}

	parts := []struct {
		prefix string
		name   string
		unit   string
	}{
		{"AAA", "主板组件", "set"},
		{"BBB", "外壳", "piece"},
		{"CCC", "螺丝 M2x4", "piece"},
	}

	created, err := svc.Tree.CreateTree(ctx, &service.CreateTreeRequest{
		Name:        sampleTreeName,
		Description: "seed 生成的示例 BOM",
	}, "")
	if err != nil {
		return fmt.Errorf("create sample tree: %w", err)
	}

	parentID := created.RootStructure.ID
	for _, p := range parts {
		code, err := svc.Code.Create(ctx, &service.CreateCodeRequest{
			PrefixID: prefixes[p.prefix],
			Name:     p.name,
			Status:   "active",
			Metadata: &service.MetadataInput{Unit: p.unit},
		}, "")
		if err != nil {
			return fmt.Errorf("seed code %s: %w", p.name, err)
		}
		st, err := svc.Tree.AddNode(ctx, created.Tree.ID, &service.AddNodeRequest{
			ParentStructureID: parentID,
			Name:              p.name,
			CodeID:            code.Code.ID,
			IsMaster:          p.prefix == "AAA",
		}, "")
		if err != nil {
			return fmt.Errorf("seed node %s: %w", p.name, err)
		}
		// 组件挂在根下，其余挂在组件下
		if p.prefix == "AAA" {
			parentID = st.ID
		}
		zap.L().Info("code seeded", zap.String("code", code.Code.Code))
	}
	zap.L().Info("sample tree created", zap.String("tree_id", created.Tree.ID))
	return nil
}

func newPrefixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefix",
		Short: "编码前缀管理",
	}

	var start int64
	reset := &cobra.Command{
		Use:   "reset <prefix-id>",
		Short: "重置流水号",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(false)
			if err != nil {
				return err
			}
			defer a.close()

			p, err := a.svc.Prefix.Reset(cmd.Context(), args[0], start)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s next number: %d\n", p.Name, p.NextNumber)
			return nil
		},
	}
	reset.Flags().Int64Var(&start, "start", 1, "新的起始流水号")

	cmd.AddCommand(reset)
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		format   string
		encoding string
		output   string
		upload   bool
	)
	cmd := &cobra.Command{
		Use:   "export <tree-id>",
		Short: "导出 BOM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			file, err := a.svc.Export.Export(ctx, args[0], format, encoding)
			if err != nil {
				return err
			}
			if upload {
				if file, err = a.svc.Export.Upload(ctx, args[0], file); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), file.URL)
				return nil
			}

			if output == "" {
				output = file.Name
			}
			if err := os.WriteFile(output, file.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s (%d bytes)\n", output, len(file.Data))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "xlsx", "xlsx 或 csv")
	cmd.Flags().StringVar(&encoding, "encoding", "utf-8", "csv 编码：utf-8、gbk、shift_jis")
	cmd.Flags().StringVarP(&output, "output", "o", "", "输出文件，默认使用导出文件名")
	cmd.Flags().BoolVar(&upload, "upload", false, "上传到对象存储并打印下载地址")
	return cmd
}
