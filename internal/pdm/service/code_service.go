package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"github.com/bitfantasy/pdm/internal/pdm/repository"
	"github.com/shopspring/decimal"
)

// CodeService 编码生命周期服务
type CodeService struct {
	repos  *repository.Repositories
	prefix *PrefixService
}

func NewCodeService(repos *repository.Repositories, prefix *PrefixService) *CodeService {
	return &CodeService{repos: repos, prefix: prefix}
}

// MetadataInput 编码属性输入
type MetadataInput struct {
	Unit           string                 `json:"unit"`
	Material       string                 `json:"material"`
	Category       string                 `json:"category"`
	Keywords       string                 `json:"keywords"`
	Notes          string                 `json:"notes"`
	Weight         *decimal.Decimal       `json:"weight"`
	Dimensions     string                 `json:"dimensions"`
	Specifications map[string]interface{} `json:"specifications"`
}

// CreateCodeRequest 生成编码请求
type CreateCodeRequest struct {
	PrefixID    string         `json:"prefix_id"`
	Name        string         `json:"name" binding:"required"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	Metadata    *MetadataInput `json:"metadata"`
}

// CodeResult 编码与其版本
type CodeResult struct {
	Code    *entity.Code        `json:"code"`
	Version *entity.CodeVersion `json:"version"`
}

// Create 生成编码并创建版本 1 与变更日志，三者同一事务
func (s *CodeService) Create(ctx context.Context, req *CreateCodeRequest, userID string) (*CodeResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name", "name is required")
	}
	status := entity.CodeStatusDraft
	if req.Status != "" {
		status = entity.CodeStatus(req.Status)
		if !status.Valid() || status == entity.CodeStatusObsolete {
			return nil, apperr.Validation("status", "status must be draft or active")
		}
	}
	var meta *entity.CodeMetadata
	if req.Metadata != nil {
		var err error
		if meta, err = buildMetadata(req.Metadata); err != nil {
			return nil, err
		}
	}

	var result CodeResult
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		allocated, err := s.prefix.Allocate(ctx, tx, req.PrefixID)
		if err != nil {
			return err
		}

		code := &entity.Code{
			ID:               repository.NewID(),
			Code:             allocated.Code,
			Name:             name,
			Description:      req.Description,
			PrefixID:         allocated.Prefix.ID,
			SequentialNumber: allocated.Number,
			Status:           status,
			CreatedBy:        actor(userID),
		}
		if err := tx.Code.Create(ctx, code); err != nil {
			return apperr.FromStore(err)
		}

		version := &entity.CodeVersion{
			ID:            repository.NewID(),
			CodeID:        code.ID,
			Version:       1,
			CodeNumber:    code.Code,
			IsCurrent:     true,
			Status:        entity.VersionStatusDraft,
			ChangedBy:     actor(userID),
			EffectiveDate: now(),
		}
		if err := tx.Code.CreateVersion(ctx, version); err != nil {
			return apperr.FromStore(err)
		}
		if meta != nil {
			meta.ID = repository.NewID()
			meta.CodeVersionID = version.ID
			if err := tx.Code.UpsertMetadata(ctx, meta); err != nil {
				return apperr.FromStore(err)
			}
			version.Metadata = meta
		}

		if err := tx.Code.CreateChangeLog(ctx, &entity.CodeChangeLog{
			ID:            repository.NewID(),
			CodeVersionID: version.ID,
			ChangedAt:     now(),
			ChangedBy:     actor(userID),
			ChangeType:    entity.CodeChangeCreate,
			Reason:        "created",
			NewStatus:     string(status),
		}); err != nil {
			return err
		}

		code.Prefix = allocated.Prefix
		result = CodeResult{Code: code, Version: version}
		return nil
	})
	if err != nil {
		return nil, err
	}
	countGenerated(result.Code.Prefix)
	return &result, nil
}

// Get 编码详情，含全部版本
func (s *CodeService) Get(ctx context.Context, id string) (*entity.Code, error) {
	code, err := s.repos.Code.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	versions, err := s.repos.Code.ListVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	code.Versions = versions
	return code, nil
}

// CodeListResult 编码列表结果
type CodeListResult struct {
	Items    []entity.Code `json:"items"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// List 编码列表
func (s *CodeService) List(ctx context.Context, page, pageSize int, f repository.CodeFilter) (*CodeListResult, error) {
	codes, total, err := s.repos.Code.List(ctx, page, pageSize, f)
	if err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}
	return &CodeListResult{Items: codes, Total: total, Page: page, PageSize: pageSize}, nil
}

// Activate draft → active
func (s *CodeService) Activate(ctx context.Context, codeID, userID string) (*entity.Code, error) {
	return s.transitionCode(ctx, codeID, userID, entity.CodeStatusDraft, entity.CodeStatusActive, "activate", "")
}

// Obsolete active → obsolete
func (s *CodeService) Obsolete(ctx context.Context, codeID, userID, reason string) (*entity.Code, error) {
	return s.transitionCode(ctx, codeID, userID, entity.CodeStatusActive, entity.CodeStatusObsolete, "become obsolete", reason)
}

func (s *CodeService) transitionCode(ctx context.Context, codeID, userID string, from, to entity.CodeStatus, action, reason string) (*entity.Code, error) {
	var code *entity.Code
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		code, err = tx.Code.FindForUpdate(ctx, codeID)
		if err != nil {
			return err
		}
		if code.Status != from {
			return apperr.Transition("code", string(code.Status), action)
		}
		if err := tx.Code.UpdateStatus(ctx, code.ID, to); err != nil {
			return err
		}

		current, err := tx.Code.CurrentVersion(ctx, code.ID)
		if err != nil {
			return err
		}
		if current != nil {
			changeType := entity.CodeChangeStatusChange
			if to == entity.CodeStatusObsolete {
				changeType = entity.CodeChangeObsolete
			}
			if err := tx.Code.CreateChangeLog(ctx, &entity.CodeChangeLog{
				ID:             repository.NewID(),
				CodeVersionID:  current.ID,
				ChangedAt:      now(),
				ChangedBy:      actor(userID),
				ChangeType:     changeType,
				Reason:         reason,
				PreviousStatus: string(from),
				NewStatus:      string(to),
			}); err != nil {
				return err
			}
		}
		code.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	return code, nil
}

// SubmitForReview 版本 draft → review
func (s *CodeService) SubmitForReview(ctx context.Context, versionID, userID string) (*entity.CodeVersion, error) {
	return s.transitionVersion(ctx, versionID, userID, entity.VersionActionSubmit, entity.CodeChangeReview, "")
}

// Approve 版本 review → approved
func (s *CodeService) Approve(ctx context.Context, versionID, userID string) (*entity.CodeVersion, error) {
	return s.transitionVersion(ctx, versionID, userID, entity.VersionActionApprove, entity.CodeChangeApprove, "")
}

// Reject 版本 review → rejected
func (s *CodeService) Reject(ctx context.Context, versionID, userID, reason string) (*entity.CodeVersion, error) {
	return s.transitionVersion(ctx, versionID, userID, entity.VersionActionReject, entity.CodeChangeReject, reason)
}

// MakeObsolete 版本 approved/review → obsolete
func (s *CodeService) MakeObsolete(ctx context.Context, versionID, userID, reason string) (*entity.CodeVersion, error) {
	return s.transitionVersion(ctx, versionID, userID, entity.VersionActionObsolete, entity.CodeChangeObsolete, reason)
}

func (s *CodeService) transitionVersion(ctx context.Context, versionID, userID string, action entity.VersionAction, changeType entity.CodeChangeType, reason string) (*entity.CodeVersion, error) {
	var version *entity.CodeVersion
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		version, err = tx.Code.FindVersionForUpdate(ctx, versionID)
		if err != nil {
			return err
		}
		prev := version.Status
		next, ok := entity.NextVersionStatus(prev, action)
		if !ok {
			return apperr.Transition("code version", string(prev), string(action))
		}

		version.Status = next
		version.ChangedBy = actor(userID)
		if reason != "" {
			version.Reason = reason
		}
		if next == entity.VersionStatusApproved {
			at := now()
			version.ApprovedBy = actor(userID)
			version.ApprovedAt = &at
		}
		if err := tx.Code.SaveVersion(ctx, version); err != nil {
			return err
		}
		return tx.Code.CreateChangeLog(ctx, &entity.CodeChangeLog{
			ID:             repository.NewID(),
			CodeVersionID:  version.ID,
			ChangedAt:      now(),
			ChangedBy:      actor(userID),
			ChangeType:     changeType,
			Reason:         reason,
			PreviousStatus: string(prev),
			NewStatus:      string(next),
		})
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// VersionUpRequest 升版请求
type VersionUpRequest struct {
	Reason       string `json:"reason" binding:"required"`
	CopyMetadata *bool  `json:"copy_metadata"`
}

// VersionUp 创建新版本并设为当前，默认复制上一当前版本的属性
func (s *CodeService) VersionUp(ctx context.Context, codeID, userID string, req *VersionUpRequest) (*entity.CodeVersion, error) {
	copyMeta := req.CopyMetadata == nil || *req.CopyMetadata

	var version *entity.CodeVersion
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		code, err := tx.Code.FindForUpdate(ctx, codeID)
		if err != nil {
			return err
		}
		if code.Status == entity.CodeStatusObsolete {
			return apperr.Transition("code", string(code.Status), "be versioned up")
		}

		latest, err := tx.Code.LockVersions(ctx, code.ID)
		if err != nil {
			return err
		}
		previous, err := tx.Code.CurrentVersion(ctx, code.ID)
		if err != nil {
			return err
		}
		if err := tx.Code.ClearCurrent(ctx, code.ID, ""); err != nil {
			return err
		}

		version = &entity.CodeVersion{
			ID:            repository.NewID(),
			CodeID:        code.ID,
			Version:       latest + 1,
			CodeNumber:    code.Code,
			IsCurrent:     true,
			Status:        entity.VersionStatusDraft,
			Reason:        req.Reason,
			ChangedBy:     actor(userID),
			EffectiveDate: now(),
		}
		if err := tx.Code.CreateVersion(ctx, version); err != nil {
			return apperr.FromStore(err)
		}

		if copyMeta && previous != nil && previous.Metadata != nil {
			meta := previous.Metadata.CloneFor(version.ID, repository.NewID())
			if err := tx.Code.UpsertMetadata(ctx, meta); err != nil {
				return err
			}
			version.Metadata = meta
		}

		prevStatus := ""
		if previous != nil {
			prevStatus = string(previous.Status)
		}
		return tx.Code.CreateChangeLog(ctx, &entity.CodeChangeLog{
			ID:             repository.NewID(),
			CodeVersionID:  version.ID,
			ChangedAt:      now(),
			ChangedBy:      actor(userID),
			ChangeType:     entity.CodeChangeVersionUp,
			Reason:         req.Reason,
			PreviousStatus: prevStatus,
			NewStatus:      string(version.Status),
		})
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// SetCurrent 显式切换当前版本，锁住同编码全部版本后先清除再置位
func (s *CodeService) SetCurrent(ctx context.Context, versionID, userID string) (*entity.CodeVersion, error) {
	var version *entity.CodeVersion
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		v, err := tx.Code.FindVersion(ctx, versionID)
		if err != nil {
			return err
		}
		if _, err := tx.Code.LockVersions(ctx, v.CodeID); err != nil {
			return err
		}
		version, err = tx.Code.FindVersionForUpdate(ctx, versionID)
		if err != nil {
			return err
		}
		if version.Status == entity.VersionStatusObsolete || version.Status == entity.VersionStatusRejected {
			return apperr.Transition("code version", string(version.Status), "become current")
		}
		if version.IsCurrent {
			return nil
		}
		if err := tx.Code.ClearCurrent(ctx, version.CodeID, version.ID); err != nil {
			return err
		}
		version.IsCurrent = true
		version.ChangedBy = actor(userID)
		return tx.Code.SaveVersion(ctx, version)
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// ListVersions 编码的版本列表
func (s *CodeService) ListVersions(ctx context.Context, codeID string) ([]entity.CodeVersion, error) {
	if _, err := s.repos.Code.FindByID(ctx, codeID); err != nil {
		return nil, err
	}
	return s.repos.Code.ListVersions(ctx, codeID)
}

// ChangeLogs 编码的变更日志
func (s *CodeService) ChangeLogs(ctx context.Context, codeID string) ([]entity.CodeChangeLog, error) {
	if _, err := s.repos.Code.FindByID(ctx, codeID); err != nil {
		return nil, err
	}
	return s.repos.Code.ListChangeLogs(ctx, codeID)
}

// GetMetadata 版本属性，没有时返回 NotFound
func (s *CodeService) GetMetadata(ctx context.Context, versionID string) (*entity.CodeMetadata, error) {
	meta, err := s.repos.Code.FindMetadata(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, apperr.NotFoundf("metadata of code version", versionID)
	}
	return meta, nil
}

// UpsertMetadata 写入版本属性，已废弃的版本不可修改
func (s *CodeService) UpsertMetadata(ctx context.Context, versionID string, in *MetadataInput) (*entity.CodeMetadata, error) {
	meta, err := buildMetadata(in)
	if err != nil {
		return nil, err
	}
	version, err := s.repos.Code.FindVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version.Status == entity.VersionStatusObsolete {
		return nil, apperr.Transition("code version", string(version.Status), "update metadata")
	}
	meta.ID = repository.NewID()
	meta.CodeVersionID = version.ID
	if err := s.repos.Code.UpsertMetadata(ctx, meta); err != nil {
		return nil, apperr.FromStore(err)
	}
	return s.GetMetadata(ctx, versionID)
}

func buildMetadata(in *MetadataInput) (*entity.CodeMetadata, error) {
	unit, err := entity.ParseUnit(in.Unit)
	if err != nil {
		return nil, apperr.Validation("unit", err.Error())
	}
	meta := &entity.CodeMetadata{
		Unit:       unit,
		Material:   in.Material,
		Category:   in.Category,
		Keywords:   in.Keywords,
		Notes:      in.Notes,
		Dimensions: in.Dimensions,
	}
	if in.Weight != nil {
		if in.Weight.IsNegative() {
			return nil, apperr.Validation("weight", "weight must not be negative")
		}
		meta.Weight = decimal.NewNullDecimal(*in.Weight)
	}
	if in.Specifications != nil {
		meta.Specifications = entity.ToJSON(in.Specifications)
	}
	return meta, nil
}
