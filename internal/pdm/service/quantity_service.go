package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"github.com/bitfantasy/pdm/internal/pdm/repository"
	"github.com/shopspring/decimal"
)

// QuantityService 结构边上的编码用量
type QuantityService struct {
	repos    *repository.Repositories
	versions *TreeVersionService
}

func NewQuantityService(repos *repository.Repositories, versions *TreeVersionService) *QuantityService {
	return &QuantityService{repos: repos, versions: versions}
}

// UpsertQuantityRequest 用量写入请求
type UpsertQuantityRequest struct {
	CodeVersionID string           `json:"code_version_id" binding:"required"`
	Quantity      decimal.Decimal  `json:"quantity"`
	Denominator   *decimal.Decimal `json:"denominator"`
	Unit          string           `json:"unit"`
	LossRate      *decimal.Decimal `json:"loss_rate"`
	MinimumOrder  *decimal.Decimal `json:"minimum_order"`
	Remarks       string           `json:"remarks"`
	EffectiveDate *time.Time       `json:"effective_date"`
	ExpiryDate    *time.Time       `json:"expiry_date"`
}

// toEntity 填充默认值：母数 1，损耗率 0，单位 piece
func (r *UpsertQuantityRequest) toEntity(structureID string) (*entity.TreeCodeQuantity, error) {
	unit, err := entity.ParseUnit(r.Unit)
	if err != nil {
		return nil, apperr.Validation("unit", err.Error())
	}
	q := &entity.TreeCodeQuantity{
		ID:              repository.NewID(),
		TreeStructureID: structureID,
		CodeVersionID:   r.CodeVersionID,
		Quantity:        r.Quantity,
		Denominator:     decimal.NewFromInt(1),
		Unit:            unit,
		LossRate:        decimal.Zero,
		Remarks:         r.Remarks,
		EffectiveDate:   now(),
		ExpiryDate:      r.ExpiryDate,
	}
	if r.Denominator != nil {
		q.Denominator = *r.Denominator
	}
	if r.LossRate != nil {
		q.LossRate = *r.LossRate
	}
	if r.MinimumOrder != nil {
		q.MinimumOrder = decimal.NewNullDecimal(*r.MinimumOrder)
	}
	if r.EffectiveDate != nil {
		q.EffectiveDate = *r.EffectiveDate
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// Upsert 按 (结构, 编码版本) 新增或覆盖用量
func (s *QuantityService) Upsert(ctx context.Context, treeID, structureID string, req *UpsertQuantityRequest, userID string) (*entity.TreeCodeQuantity, error) {
	q, err := req.toEntity(structureID)
	if err != nil {
		return nil, err
	}

	var (
		saved *entity.TreeCodeQuantity
		log   *entity.TreeChangeLog
	)
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		tree, err := lockMutableTree(ctx, tx, treeID)
		if err != nil {
			return err
		}
		st, err := structureInTree(ctx, tx, structureID, tree.ID)
		if err != nil {
			return err
		}
		if err := rejectShared(ctx, tx, st, true, "structure_id"); err != nil {
			return err
		}
		version, err := tx.Code.FindVersion(ctx, req.CodeVersionID)
		if err != nil {
			return err
		}
		if version.Status == entity.VersionStatusObsolete || version.Status == entity.VersionStatusRejected {
			return apperr.Validation("code_version_id", fmt.Sprintf("code version is %s", version.Status))
		}

		var previous interface{}
		if old, err := tx.Quantity.Find(ctx, st.ID, version.ID); err == nil {
			old.CodeVersion = nil
			previous = old
		} else if !apperr.Is(err, apperr.NotFound) {
			return err
		}

		if err := tx.Quantity.Upsert(ctx, q); err != nil {
			return apperr.FromStore(err)
		}
		if saved, err = tx.Quantity.Find(ctx, st.ID, version.ID); err != nil {
			return err
		}

		tv, err := s.versions.ResolveOpenVersion(ctx, tx, tree, userID)
		if err != nil {
			return err
		}
		log = &entity.TreeChangeLog{
			TreeVersionID:       tv.ID,
			ChangedBy:           actor(userID),
			ChangeType:          entity.TreeChangeUpdateQuantity,
			Description:         fmt.Sprintf("quantity of %s set to %s/%s", version.CodeNumber, q.Quantity, q.Denominator),
			AffectedNodeID:      &st.NodeID,
			AffectedStructureID: &st.ID,
			SignificanceLevel:   1,
			PreviousData:        entity.ToJSON(previous),
			NewData:             entity.ToJSON(q),
		}
		if err := s.versions.Record(ctx, tx, log); err != nil {
			return err
		}
		return tx.Tree.Touch(ctx, tree.ID, "", actor(userID))
	})
	if err != nil {
		return nil, err
	}
	s.versions.Dispatch(ctx, treeID, log)
	return saved, nil
}

// List 结构上的用量行
func (s *QuantityService) List(ctx context.Context, structureID string) ([]entity.TreeCodeQuantity, error) {
	if _, err := s.repos.Structure.FindByID(ctx, structureID); err != nil {
		return nil, err
	}
	return s.repos.Quantity.ListByStructure(ctx, structureID)
}

// Delete 删除用量行，所在树须可修改且结构不在共享子树内
func (s *QuantityService) Delete(ctx context.Context, id string) error {
	return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		q, err := tx.Quantity.FindByID(ctx, id)
		if err != nil {
			return err
		}
		st, err := tx.Structure.FindByID(ctx, q.TreeStructureID)
		if err != nil {
			return err
		}
		if _, err := lockMutableTree(ctx, tx, st.TreeID); err != nil {
			return err
		}
		if err := rejectShared(ctx, tx, st, true, "structure_id"); err != nil {
			return err
		}
		return tx.Quantity.Delete(ctx, q.ID)
	})
}

// CalculationLine 一行用量的计算结果
type CalculationLine struct {
	QuantityID            string          `json:"quantity_id"`
	CodeVersionID         string          `json:"code_version_id"`
	CodeNumber            string          `json:"code_number,omitempty"`
	Unit                  entity.Unit     `json:"unit"`
	EffectiveQuantity     decimal.Decimal `json:"effective_quantity"`
	RequiredOrderQuantity decimal.Decimal `json:"required_order_quantity"`
	Valid                 bool            `json:"valid"`
}

// Calculate 按需求数量计算结构上每行用量的有效用量与订购量
func (s *QuantityService) Calculate(ctx context.Context, structureID string, required decimal.Decimal, at time.Time) ([]CalculationLine, error) {
	if required.IsNegative() {
		return nil, apperr.Validation("required_amount", "required_amount must not be negative")
	}
	list, err := s.List(ctx, structureID)
	if err != nil {
		return nil, err
	}
	return calculateLines(list, required, at), nil
}

func calculateLines(list []entity.TreeCodeQuantity, required decimal.Decimal, at time.Time) []CalculationLine {
	lines := make([]CalculationLine, 0, len(list))
	for i := range list {
		q := &list[i]
		line := CalculationLine{
			QuantityID:            q.ID,
			CodeVersionID:         q.CodeVersionID,
			Unit:                  q.Unit,
			EffectiveQuantity:     q.EffectiveQuantity(),
			RequiredOrderQuantity: q.RequiredOrderQuantity(required),
			Valid:                 q.IsValidAt(at),
		}
		if q.CodeVersion != nil {
			line.CodeNumber = q.CodeVersion.CodeNumber
		}
		lines = append(lines, line)
	}
	return lines
}
