package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/pdm/internal/metrics"
	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"github.com/bitfantasy/pdm/internal/pdm/repository"
	"github.com/bitfantasy/pdm/internal/pdm/sse"
	"go.uber.org/zap"
)

// TreeVersionService 树版本、变更日志与通知
type TreeVersionService struct {
	repos    *repository.Repositories
	notifier Notifier
	hub      *sse.Hub
	async    bool
}

func NewTreeVersionService(repos *repository.Repositories, notifier Notifier, hub *sse.Hub) *TreeVersionService {
	return &TreeVersionService{repos: repos, notifier: notifier, hub: hub, async: true}
}

// SetNotifier 替换通知渠道，async 为 false 时在 Dispatch 内同步发送
func (s *TreeVersionService) SetNotifier(n Notifier, async bool) {
	s.notifier = n
	s.async = async
}

// ResolveOpenVersion 最新的 draft/review/approved 版本，没有时创建新草稿版本
func (s *TreeVersionService) ResolveOpenVersion(ctx context.Context, tx *repository.Repositories, tree *entity.Tree, userID string) (*entity.TreeVersion, error) {
	v, err := tx.TreeVersion.LatestOpen(ctx, tree.ID)
	if err != nil {
		return nil, err
	}
	if v != nil {
		return v, nil
	}
	latest, err := tx.TreeVersion.MaxNumber(ctx, tree.ID)
	if err != nil {
		return nil, err
	}
	v = &entity.TreeVersion{
		ID:            repository.NewID(),
		TreeID:        tree.ID,
		VersionNumber: latest + 1,
		VersionName:   fmt.Sprintf("%s v%d", tree.Name, latest+1),
		Status:        entity.VersionStatusDraft,
		CreatedBy:     actor(userID),
		EffectiveDate: now(),
	}
	if err := tx.TreeVersion.Create(ctx, v); err != nil {
		return nil, apperr.FromStore(err)
	}
	return v, nil
}

// Record 推导重要度后写入变更日志
func (s *TreeVersionService) Record(ctx context.Context, tx *repository.Repositories, log *entity.TreeChangeLog) error {
	if log.ID == "" {
		log.ID = repository.NewID()
	}
	if log.ChangedAt.IsZero() {
		log.ChangedAt = now()
	}
	log.ApplySignificance()
	if err := tx.TreeVersion.CreateChangeLog(ctx, log); err != nil {
		return fmt.Errorf("record %s change: %w", log.ChangeType, err)
	}
	metrics.RecordChangeLog(string(log.ChangeType), log.SignificanceLevel)
	return nil
}

// Dispatch 事务提交后推送事件并发送重大变更通知
func (s *TreeVersionService) Dispatch(ctx context.Context, treeID string, logs ...*entity.TreeChangeLog) {
	for _, l := range logs {
		if s.hub != nil {
			change := sse.TreeChange{TreeID: treeID, ChangeType: string(l.ChangeType), ChangeLogID: l.ID}
			if l.AffectedStructureID != nil {
				change.StructureID = *l.AffectedStructureID
			}
			s.hub.PublishTreeChange(change)
		}
	}

	var pending []*entity.TreeChangeLog
	for _, l := range logs {
		if l.NeedsNotification() {
			pending = append(pending, l)
		}
	}
	if len(pending) == 0 || s.notifier == nil {
		return
	}

	run := func(ctx context.Context) {
		for _, l := range pending {
			if err := s.notify(ctx, l); err != nil {
				zap.L().Error("change notification failed",
					zap.String("change_log_id", l.ID),
					zap.String("change_type", string(l.ChangeType)),
					zap.Error(err),
				)
			}
		}
	}
	if !s.async {
		run(ctx)
		return
	}
	go run(detach(ctx))
}

// notify 先抢占 notification_sent 标记，抢到才发送，保证同一日志只通知一次
func (s *TreeVersionService) notify(ctx context.Context, log *entity.TreeChangeLog) error {
	claimed, err := s.repos.TreeVersion.ClaimNotification(ctx, log.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	log.NotificationSent = true

	version, err := s.repos.TreeVersion.FindByID(ctx, log.TreeVersionID)
	if err != nil {
		return err
	}
	tree, err := s.repos.Tree.FindByID(ctx, version.TreeID)
	if err != nil {
		return err
	}
	err = s.notifier.Notify(ctx, ChangeNotification{
		Tree:         tree,
		Version:      version,
		Log:          log,
		Stakeholders: Stakeholders(tree, version),
	})
	notifyResult(err)
	return err
}

// Stakeholders 树创建人、最后修改人、版本创建人与审批人，去重
func Stakeholders(tree *entity.Tree, version *entity.TreeVersion) []string {
	candidates := []*string{tree.CreatedBy, tree.LastModifiedBy}
	if version != nil {
		candidates = append(candidates, version.CreatedBy, version.ApprovedBy)
	}
	seen := make(map[string]struct{}, len(candidates))
	result := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || *c == "" {
			continue
		}
		if _, ok := seen[*c]; ok {
			continue
		}
		seen[*c] = struct{}{}
		result = append(result, *c)
	}
	return result
}

// CreateVersionRequest 新建树版本请求
type CreateVersionRequest struct {
	VersionName   string     `json:"version_name"`
	Description   string     `json:"description"`
	ChangeSummary string     `json:"change_summary"`
	EffectiveDate *time.Time `json:"effective_date"`
	ExpiryDate    *time.Time `json:"expiry_date"`
}

// CreateVersion 升版：以最大版本号 +1 新建草稿版本并记录 version_up
func (s *TreeVersionService) CreateVersion(ctx context.Context, treeID, userID string, req *CreateVersionRequest) (*entity.TreeVersion, error) {
	effective := now()
	if req.EffectiveDate != nil {
		effective = *req.EffectiveDate
	}
	if req.ExpiryDate != nil && !effective.Before(*req.ExpiryDate) {
		return nil, apperr.Validation("expiry_date", "expiry_date must be after effective_date")
	}

	var (
		version *entity.TreeVersion
		log     *entity.TreeChangeLog
	)
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		tree, err := tx.Tree.FindForUpdate(ctx, treeID)
		if err != nil {
			return err
		}
		if tree.Status == entity.TreeStatusArchived {
			return apperr.Transition("tree", string(tree.Status), "create version")
		}
		latest, err := tx.TreeVersion.MaxNumber(ctx, tree.ID)
		if err != nil {
			return err
		}
		name := strings.TrimSpace(req.VersionName)
		if name == "" {
			name = fmt.Sprintf("%s v%d", tree.Name, latest+1)
		}
		version = &entity.TreeVersion{
			ID:            repository.NewID(),
			TreeID:        tree.ID,
			VersionNumber: latest + 1,
			VersionName:   name,
			Description:   req.Description,
			ChangeSummary: req.ChangeSummary,
			Status:        entity.VersionStatusDraft,
			CreatedBy:     actor(userID),
			EffectiveDate: effective,
			ExpiryDate:    req.ExpiryDate,
		}
		if err := tx.TreeVersion.Create(ctx, version); err != nil {
			return apperr.FromStore(err)
		}

		log = &entity.TreeChangeLog{
			TreeVersionID: version.ID,
			ChangedBy:     actor(userID),
			ChangeType:    entity.TreeChangeVersionUp,
			Description:   fmt.Sprintf("version %d created", version.VersionNumber),
			NewData:       entity.ToJSON(version),
		}
		if latest > 0 {
			log.PreviousData = entity.ToJSON(map[string]int{"version_number": latest})
		}
		return s.Record(ctx, tx, log)
	})
	if err != nil {
		return nil, err
	}
	s.Dispatch(ctx, treeID, log)
	return version, nil
}

// GetVersion 树版本详情
func (s *TreeVersionService) GetVersion(ctx context.Context, id string) (*entity.TreeVersion, error) {
	return s.repos.TreeVersion.FindByID(ctx, id)
}

// ListVersions 树的版本列表
func (s *TreeVersionService) ListVersions(ctx context.Context, treeID string) ([]entity.TreeVersion, error) {
	if _, err := s.repos.Tree.FindByID(ctx, treeID); err != nil {
		return nil, err
	}
	return s.repos.TreeVersion.ListByTree(ctx, treeID)
}

// SubmitForReview draft → review
func (s *TreeVersionService) SubmitForReview(ctx context.Context, versionID, userID, comment string) (*entity.TreeVersion, error) {
	return s.transition(ctx, versionID, userID, entity.VersionActionSubmit, comment)
}

// Approve review → approved
func (s *TreeVersionService) Approve(ctx context.Context, versionID, userID, comment string) (*entity.TreeVersion, error) {
	return s.transition(ctx, versionID, userID, entity.VersionActionApprove, comment)
}

// Reject review → rejected
func (s *TreeVersionService) Reject(ctx context.Context, versionID, userID, comment string) (*entity.TreeVersion, error) {
	return s.transition(ctx, versionID, userID, entity.VersionActionReject, comment)
}

// MakeObsolete approved/review → obsolete
func (s *TreeVersionService) MakeObsolete(ctx context.Context, versionID, userID, comment string) (*entity.TreeVersion, error) {
	return s.transition(ctx, versionID, userID, entity.VersionActionObsolete, comment)
}

func (s *TreeVersionService) transition(ctx context.Context, versionID, userID string, action entity.VersionAction, comment string) (*entity.TreeVersion, error) {
	var (
		version *entity.TreeVersion
		log     *entity.TreeChangeLog
	)
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		version, err = tx.TreeVersion.FindForUpdate(ctx, versionID)
		if err != nil {
			return err
		}
		prev := version.Status
		next, ok := entity.NextVersionStatus(prev, action)
		if !ok {
			return apperr.Transition("tree version", string(prev), string(action))
		}

		version.Status = next
		switch next {
		case entity.VersionStatusApproved:
			at := now()
			version.ApprovedBy = actor(userID)
			version.ApprovedAt = &at
		case entity.VersionStatusObsolete:
			if version.ExpiryDate == nil {
				at := now()
				version.ExpiryDate = &at
			}
		}
		if comment != "" {
			version.ReviewComments = comment
		}
		if err := tx.TreeVersion.Save(ctx, version); err != nil {
			return err
		}

		log = &entity.TreeChangeLog{
			TreeVersionID:     version.ID,
			ChangedBy:         actor(userID),
			ChangeType:        entity.TreeChangeApprovalChange,
			Description:       fmt.Sprintf("version %d %s", version.VersionNumber, action),
			SignificanceLevel: 1,
			PreviousData:      entity.ToJSON(entity.StatusDetail{From: string(prev)}),
			NewData:           entity.ToJSON(entity.StatusDetail{To: string(next), Comment: comment}),
		}
		return s.Record(ctx, tx, log)
	})
	if err != nil {
		return nil, err
	}
	s.Dispatch(ctx, version.TreeID, log)
	return version, nil
}

// ListChanges 变更日志查询
func (s *TreeVersionService) ListChanges(ctx context.Context, f repository.ChangeLogFilter) ([]entity.TreeChangeLog, error) {
	if f.ChangeType != "" && !entity.TreeChangeType(f.ChangeType).Valid() {
		return nil, apperr.Validation("change_type", "unknown change_type "+f.ChangeType)
	}
	return s.repos.TreeVersion.ListChangeLogs(ctx, f)
}

// ApproveChange 审批一条需要审批的变更
func (s *TreeVersionService) ApproveChange(ctx context.Context, logID, userID string) (*entity.TreeChangeLog, error) {
	log, err := s.repos.TreeVersion.FindChangeLog(ctx, logID)
	if err != nil {
		return nil, err
	}
	if !log.RequiresApproval {
		return nil, apperr.Transition("change log", "not requiring approval", "be approved")
	}
	ok, err := s.repos.TreeVersion.ApproveChangeLog(ctx, log.ID, actor(userID), now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Transition("change log", "approved", "be approved again")
	}
	return s.repos.TreeVersion.FindChangeLog(ctx, logID)
}
