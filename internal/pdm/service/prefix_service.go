package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitfantasy/pdm/internal/metrics"
	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"github.com/bitfantasy/pdm/internal/pdm/repository"
)

// 编码模板，流水号超过四位时自然加宽
var codeFormats = map[entity.CodeType]string{
	entity.CodeTypeAssembly:  "A%04dZ000",
	entity.CodeTypePart:      "AA%04dZ000",
	entity.CodeTypePurchased: "A%04dZ00",
}

// FormatCode 按前缀类型生成 "{name}-{formatted}"
func FormatCode(p *entity.Prefix, number int64) (string, error) {
	format, ok := codeFormats[p.CodeType]
	if !ok {
		return "", apperr.Newf(apperr.InvalidConfiguration, "prefix %s has unknown code_type %q", p.Name, p.CodeType)
	}
	return p.Name + "-" + fmt.Sprintf(format, number), nil
}

// PrefixService 前缀与流水号服务
type PrefixService struct {
	repos *repository.Repositories
}

func NewPrefixService(repos *repository.Repositories) *PrefixService {
	return &PrefixService{repos: repos}
}

// CreatePrefixRequest 创建前缀请求
type CreatePrefixRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	CodeType    string `json:"code_type" binding:"required"`
	StartNumber int64  `json:"start_number"`
}

// AllocatedCode 一次分配结果
type AllocatedCode struct {
	Code   string
	Number int64
	Prefix *entity.Prefix
}

// PreviewResult 预览结果
type PreviewResult struct {
	PreviewCode string `json:"preview_code"`
	NextNumber  int64  `json:"next_number"`
}

// Create 创建前缀
func (s *PrefixService) Create(ctx context.Context, req *CreatePrefixRequest) (*entity.Prefix, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 10 {
		return nil, apperr.Validation("name", "name must be 1-10 characters")
	}
	codeType, err := entity.ParseCodeType(req.CodeType)
	if err != nil {
		return nil, apperr.Validation("code_type", err.Error())
	}
	start := req.StartNumber
	if start == 0 {
		start = 1
	}
	if start < 1 {
		return nil, apperr.Validation("start_number", "start_number must be at least 1")
	}

	p := &entity.Prefix{
		ID:          repository.NewID(),
		Name:        name,
		Description: req.Description,
		CodeType:    codeType,
		NextNumber:  start,
	}
	if err := s.repos.Prefix.Create(ctx, p); err != nil {
		return nil, apperr.FromStore(err)
	}
	return p, nil
}

// Get 获取前缀
func (s *PrefixService) Get(ctx context.Context, id string) (*entity.Prefix, error) {
	return s.repos.Prefix.FindByID(ctx, id)
}

// List 前缀列表
func (s *PrefixService) List(ctx context.Context) ([]entity.Prefix, error) {
	return s.repos.Prefix.List(ctx)
}

// Allocate 在调用方事务内锁定前缀行、生成编码并递增计数器，提交后由调用方计数
func (s *PrefixService) Allocate(ctx context.Context, tx *repository.Repositories, prefixID string) (*AllocatedCode, error) {
	p, err := tx.Prefix.FindForUpdate(ctx, prefixID)
	if err != nil {
		return nil, err
	}
	// 先格式化再递增，配置错误时不改动计数器
	code, err := FormatCode(p, p.NextNumber)
	if err != nil {
		return nil, err
	}
	if err := tx.Prefix.Increment(ctx, p.ID); err != nil {
		return nil, fmt.Errorf("increment prefix counter: %w", err)
	}
	return &AllocatedCode{Code: code, Number: p.NextNumber, Prefix: p}, nil
}

// GenerateCode 单独分配一个编码
func (s *PrefixService) GenerateCode(ctx context.Context, prefixID string) (string, error) {
	var allocated *AllocatedCode
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		allocated, err = s.Allocate(ctx, tx, prefixID)
		return err
	})
	if err != nil {
		return "", err
	}
	countGenerated(allocated.Prefix)
	return allocated.Code, nil
}

func countGenerated(p *entity.Prefix) {
	metrics.CodesGenerated.WithLabelValues(string(p.CodeType)).Inc()
}

// Preview 只读预览下一个编码
func (s *PrefixService) Preview(ctx context.Context, prefixID string) (*PreviewResult, error) {
	p, err := s.repos.Prefix.FindByID(ctx, prefixID)
	if err != nil {
		return nil, err
	}
	code, err := FormatCode(p, p.NextNumber)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{PreviewCode: code, NextNumber: p.NextNumber}, nil
}

// Reset 管理员重置流水号
func (s *PrefixService) Reset(ctx context.Context, prefixID string, start int64) (*entity.Prefix, error) {
	if start < 1 {
		return nil, apperr.Validation("start", "start must be at least 1")
	}
	if err := s.repos.Prefix.SetNextNumber(ctx, prefixID, start); err != nil {
		return nil, err
	}
	return s.repos.Prefix.FindByID(ctx, prefixID)
}
