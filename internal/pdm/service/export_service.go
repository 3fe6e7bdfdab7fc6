package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/repository"
	"github.com/minio/minio-go/v7"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

var exportHeaders = []string{
	"层级", "路径", "节点", "节点类型", "编码", "关系类型",
	"数量", "主结构数量", "共享", "有效用量", "单位",
}

// ExportFile 导出结果
type ExportFile struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
	URL         string `json:"url,omitempty"`
}

// ExportService BOM 导出
type ExportService struct {
	trees  *TreeService
	repos  *repository.Repositories
	minio  *minio.Client
	bucket string
	expiry time.Duration
}

func NewExportService(trees *TreeService, repos *repository.Repositories, minioClient *minio.Client, bucket string, expiry time.Duration) *ExportService {
	return &ExportService{trees: trees, repos: repos, minio: minioClient, bucket: bucket, expiry: expiry}
}

// textEncoding 解析 CSV 编码，utf8 返回 nil
func textEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "utf8", "utf-8":
		return nil, nil
	case "gbk":
		return simplifiedchinese.GBK, nil
	case "shift_jis", "sjis":
		return japanese.ShiftJIS, nil
	}
	return nil, apperr.Validation("encoding", "unsupported encoding "+name)
}

// Export 生成 xlsx 或 csv
func (s *ExportService) Export(ctx context.Context, treeID, format, enc string) (*ExportFile, error) {
	tree, err := s.repos.Tree.FindByID(ctx, treeID)
	if err != nil {
		return nil, err
	}
	rows, err := s.rows(ctx, treeID)
	if err != nil {
		return nil, err
	}

	stamp := time.Now().Format("20060102150405")
	switch strings.ToLower(format) {
	case "", "xlsx":
		data, err := renderXLSX(rows)
		if err != nil {
			return nil, fmt.Errorf("render xlsx: %w", err)
		}
		return &ExportFile{
			Name:        fmt.Sprintf("%s_%s.xlsx", tree.Name, stamp),
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        data,
		}, nil
	case "csv":
		e, err := textEncoding(enc)
		if err != nil {
			return nil, err
		}
		data, err := renderCSV(rows, e)
		if err != nil {
			return nil, fmt.Errorf("render csv: %w", err)
		}
		charset := "utf-8"
		if e != nil {
			charset = strings.ToLower(enc)
		}
		return &ExportFile{
			Name:        fmt.Sprintf("%s_%s.csv", tree.Name, stamp),
			ContentType: "text/csv; charset=" + charset,
			Data:        data,
		}, nil
	}
	return nil, apperr.Validation("format", "format must be xlsx or csv")
}

// Upload 上传到对象存储并返回预签名下载地址
func (s *ExportService) Upload(ctx context.Context, treeID string, file *ExportFile) (*ExportFile, error) {
	if s.minio == nil {
		return nil, apperr.New(apperr.InvalidConfiguration, "object storage is not configured")
	}
	objectName := fmt.Sprintf("bom/%s/%s", treeID, file.Name)
	_, err := s.minio.PutObject(ctx, s.bucket, objectName, bytes.NewReader(file.Data), int64(len(file.Data)), minio.PutObjectOptions{
		ContentType: file.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("upload export: %w", err)
	}
	u, err := s.minio.PresignedGetObject(ctx, s.bucket, objectName, s.expiry, nil)
	if err != nil {
		return nil, fmt.Errorf("presign export: %w", err)
	}
	file.URL = u.String()
	return file, nil
}

// rows 导出行，数量取自解析后的结构视图
func (s *ExportService) rows(ctx context.Context, treeID string) ([][]string, error) {
	views, err := s.trees.GetStructure(ctx, treeID, true)
	if err != nil {
		return nil, err
	}
	quantities, err := s.repos.Quantity.ListByTree(ctx, treeID)
	if err != nil {
		return nil, err
	}

	at := time.Now()
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		name, nodeType, code := "", "", ""
		if v.Node != nil {
			name = v.Node.Name
			nodeType = string(v.Node.NodeType)
			if v.Node.Code != nil {
				code = v.Node.Code.Code
			}
		}
		resolved := ""
		if v.ResolvedQuantity != nil {
			resolved = v.ResolvedQuantity.String()
		}
		shared := ""
		if v.IsShared {
			shared = "Y"
		}
		effective, unit := "", ""
		for i := range quantities[v.ID] {
			q := &quantities[v.ID][i]
			if q.IsValidAt(at) {
				effective = q.EffectiveQuantity().StringFixed(3)
				unit = string(q.Unit)
				break
			}
		}
		rows = append(rows, []string{
			strconv.Itoa(v.Level),
			v.Path,
			indentName(v.Level, name),
			nodeType,
			code,
			string(v.RelationshipType),
			v.Quantity.String(),
			resolved,
			shared,
			effective,
			unit,
		})
	}
	return rows, nil
}

func indentName(level int, name string) string {
	return strings.Repeat("  ", level) + name
}

func renderXLSX(rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "BOM"
	f.SetSheetName("Sheet1", sheet)

	// 表头样式: 加粗
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range exportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}
	for r, row := range rows {
		for c, val := range row {
			col, _ := excelize.ColumnNumberToName(c + 1)
			f.SetCellValue(sheet, fmt.Sprintf("%s%d", col, r+2), val)
		}
	}
	f.SetColWidth(sheet, "B", "B", 40)
	f.SetColWidth(sheet, "C", "C", 30)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderCSV(rows [][]string, enc encoding.Encoding) ([]byte, error) {
	var buf bytes.Buffer
	var w *csv.Writer
	var tw *transform.Writer
	if enc != nil {
		tw = transform.NewWriter(&buf, enc.NewEncoder())
		w = csv.NewWriter(tw)
	} else {
		w = csv.NewWriter(&buf)
	}
	if err := w.Write(exportHeaders); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	if tw != nil {
		if err := tw.Close(); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
