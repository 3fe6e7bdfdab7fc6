package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"github.com/bitfantasy/pdm/internal/pdm/repository"
	"github.com/shopspring/decimal"
)

// TreeService BOM 树结构服务
type TreeService struct {
	repos    *repository.Repositories
	versions *TreeVersionService
	cache    *StructureCache
}

func NewTreeService(repos *repository.Repositories, versions *TreeVersionService, cache *StructureCache) *TreeService {
	return &TreeService{repos: repos, versions: versions, cache: cache}
}

// CreateTreeRequest 创建树请求
type CreateTreeRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// CreateTreeResult 新树及其根
type CreateTreeResult struct {
	Tree          *entity.Tree          `json:"tree"`
	RootNode      *entity.TreeNode      `json:"root_node"`
	RootStructure *entity.TreeStructure `json:"root_structure"`
	Version       *entity.TreeVersion   `json:"version"`
}

// CreateTree 同一事务内创建树、根节点、根结构与版本 1
func (s *TreeService) CreateTree(ctx context.Context, req *CreateTreeRequest, userID string) (*CreateTreeResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name", "name is required")
	}

	var (
		result CreateTreeResult
		log    *entity.TreeChangeLog
	)
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		tree := &entity.Tree{
			ID:             repository.NewID(),
			Name:           name,
			Description:    req.Description,
			Status:         entity.TreeStatusDraft,
			CreatedBy:      actor(userID),
			LastModifiedBy: actor(userID),
		}
		if err := tx.Tree.Create(ctx, tree); err != nil {
			return apperr.FromStore(err)
		}

		node := &entity.TreeNode{
			ID:       repository.NewID(),
			Name:     name,
			NodeType: entity.NodeTypeRoot,
			Status:   entity.NodeStatusActive,
		}
		if err := tx.Tree.CreateNode(ctx, node); err != nil {
			return err
		}

		root := &entity.TreeStructure{
			ID:               repository.NewID(),
			TreeID:           tree.ID,
			NodeID:           node.ID,
			Level:            0,
			Path:             entity.ChildPath("", node.ID),
			RelationshipType: entity.RelationshipAssembly,
			IsMaster:         true,
			Quantity:         decimal.NewFromInt(1),
			EffectiveDate:    now(),
		}
		if err := tx.Structure.Create(ctx, root); err != nil {
			return apperr.FromStore(err)
		}
		root.Node = node

		version, err := s.versions.ResolveOpenVersion(ctx, tx, tree, userID)
		if err != nil {
			return err
		}
		snap := entity.SnapshotOf(root)
		log = &entity.TreeChangeLog{
			TreeVersionID:       version.ID,
			ChangedBy:           actor(userID),
			ChangeType:          entity.TreeChangeAddNode,
			Description:         "root node created",
			AffectedNodeID:      &node.ID,
			AffectedStructureID: &root.ID,
			SignificanceLevel:   1,
			NewData:             entity.ToJSON(snap),
		}
		if err := s.versions.Record(ctx, tx, log); err != nil {
			return err
		}

		result = CreateTreeResult{Tree: tree, RootNode: node, RootStructure: root, Version: version}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.versions.Dispatch(ctx, result.Tree.ID, log)
	return &result, nil
}

// Get 树详情
func (s *TreeService) Get(ctx context.Context, id string) (*entity.Tree, error) {
	return s.repos.Tree.FindByID(ctx, id)
}

// List 树列表
func (s *TreeService) List(ctx context.Context, status string) ([]entity.Tree, error) {
	if status != "" {
		switch entity.TreeStatus(status) {
		case entity.TreeStatusDraft, entity.TreeStatusActive, entity.TreeStatusArchived, entity.TreeStatusLocked:
		default:
			return nil, apperr.Validation("status", "unknown tree status "+status)
		}
	}
	return s.repos.Tree.List(ctx, status)
}

// GetRoot 树的根节点
func (s *TreeService) GetRoot(ctx context.Context, treeID string) (*entity.TreeNode, error) {
	if _, err := s.repos.Tree.FindByID(ctx, treeID); err != nil {
		return nil, err
	}
	root, err := s.repos.Structure.Root(ctx, treeID)
	if err != nil {
		return nil, err
	}
	if root.Node == nil {
		return nil, apperr.NotFoundf("root node of tree", treeID)
	}
	return root.Node, nil
}

// AddNodeRequest 添加节点请求，node_id 与 name 二选一
type AddNodeRequest struct {
	ParentStructureID string           `json:"parent_structure_id" binding:"required"`
	NodeID            string           `json:"node_id"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	NodeType          string           `json:"node_type"`
	CodeID            string           `json:"code_id"`
	Quantity          *decimal.Decimal `json:"quantity"`
	RelationshipType  string           `json:"relationship_type"`
	IsMaster          bool             `json:"is_master"`
	Sequence          *int             `json:"sequence"`
	EffectiveDate     *time.Time       `json:"effective_date"`
	ExpiryDate        *time.Time       `json:"expiry_date"`
}

// AddNode 在父结构下添加节点
func (s *TreeService) AddNode(ctx context.Context, treeID string, req *AddNodeRequest, userID string) (*entity.TreeStructure, error) {
	if req.NodeID == "" && strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Validation("name", "name or node_id is required")
	}
	quantity := decimal.NewFromInt(1)
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity.IsNegative() {
		return nil, apperr.Validation("quantity", "quantity must not be negative")
	}
	relType, err := entity.ParseRelationshipType(req.RelationshipType)
	if err != nil {
		return nil, apperr.Validation("relationship_type", err.Error())
	}
	nodeTypeRaw := req.NodeType
	if nodeTypeRaw == "" && req.CodeID != "" {
		nodeTypeRaw = string(entity.NodeTypeCode)
	}
	nodeType, err := entity.ParseNodeType(nodeTypeRaw)
	if err != nil {
		return nil, apperr.Validation("node_type", err.Error())
	}
	if nodeType == entity.NodeTypeRoot {
		return nil, apperr.Validation("node_type", "root nodes are created with the tree")
	}
	effective := now()
	if req.EffectiveDate != nil {
		effective = *req.EffectiveDate
	}
	if req.ExpiryDate != nil && !effective.Before(*req.ExpiryDate) {
		return nil, apperr.Validation("expiry_date", "expiry_date must be after effective_date")
	}

	var (
		structure *entity.TreeStructure
		log       *entity.TreeChangeLog
	)
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		tree, err := lockMutableTree(ctx, tx, treeID)
		if err != nil {
			return err
		}
		parent, err := structureInTree(ctx, tx, req.ParentStructureID, tree.ID)
		if err != nil {
			return err
		}
		if err := rejectShared(ctx, tx, parent, true, "parent_structure_id"); err != nil {
			return err
		}

		var code *entity.Code
		if req.CodeID != "" {
			code, err = tx.Code.FindByID(ctx, req.CodeID)
			if err != nil {
				return err
			}
			if code.Status != entity.CodeStatusActive {
				return apperr.Validation("code_id", fmt.Sprintf("code %s is %s, only active codes can be used", code.Code, code.Status))
			}
		}

		var node *entity.TreeNode
		if req.NodeID != "" {
			if node, err = tx.Tree.FindNode(ctx, req.NodeID); err != nil {
				return err
			}
			if node.NodeType == entity.NodeTypeRoot {
				return apperr.Validation("node_id", "root nodes cannot be reused")
			}
		} else {
			node = &entity.TreeNode{
				ID:          repository.NewID(),
				Name:        strings.TrimSpace(req.Name),
				Description: req.Description,
				NodeType:    nodeType,
				Status:      entity.NodeStatusActive,
			}
			if code != nil {
				node.CodeID = &code.ID
			}
			if err := tx.Tree.CreateNode(ctx, node); err != nil {
				return err
			}
		}
		if slices.Contains(parent.NodePath(), node.ID) {
			return apperr.Validation("node_id", "node already appears on the ancestor path")
		}

		seq, err := nextSequence(ctx, tx, parent.ID, req.Sequence)
		if err != nil {
			return err
		}
		structure = &entity.TreeStructure{
			ID:               repository.NewID(),
			TreeID:           tree.ID,
			NodeID:           node.ID,
			ParentID:         &parent.ID,
			Level:            parent.Level + 1,
			Path:             entity.ChildPath(parent.Path, node.ID),
			Sequence:         seq,
			RelationshipType: relType,
			IsMaster:         req.IsMaster,
			Quantity:         quantity,
			EffectiveDate:    effective,
			ExpiryDate:       req.ExpiryDate,
		}
		if err := tx.Structure.Create(ctx, structure); err != nil {
			return apperr.FromStore(err)
		}
		structure.Node = node

		if code != nil && quantity.IsPositive() {
			if err := s.createCodeQuantity(ctx, tx, structure, code); err != nil {
				return err
			}
		}

		version, err := s.versions.ResolveOpenVersion(ctx, tx, tree, userID)
		if err != nil {
			return err
		}
		log = &entity.TreeChangeLog{
			TreeVersionID:       version.ID,
			ChangedBy:           actor(userID),
			ChangeType:          entity.TreeChangeAddNode,
			Description:         fmt.Sprintf("node %s added", node.Name),
			AffectedNodeID:      &node.ID,
			AffectedStructureID: &structure.ID,
			SignificanceLevel:   1,
			NewData:             entity.ToJSON(entity.SnapshotOf(structure)),
		}
		if err := s.versions.Record(ctx, tx, log); err != nil {
			return err
		}
		return tx.Tree.Touch(ctx, tree.ID, "", actor(userID))
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, treeID, log)
	return structure, nil
}

// createCodeQuantity 为编码当前版本建立用量行，单位取版本属性
func (s *TreeService) createCodeQuantity(ctx context.Context, tx *repository.Repositories, st *entity.TreeStructure, code *entity.Code) error {
	current, err := tx.Code.CurrentVersion(ctx, code.ID)
	if err != nil || current == nil {
		return err
	}
	unit := entity.UnitPiece
	if current.Metadata != nil && current.Metadata.Unit != "" {
		unit = current.Metadata.Unit
	}
	return tx.Quantity.Upsert(ctx, &entity.TreeCodeQuantity{
		ID:              repository.NewID(),
		TreeStructureID: st.ID,
		CodeVersionID:   current.ID,
		Quantity:        st.Quantity,
		Denominator:     decimal.NewFromInt(1),
		Unit:            unit,
		LossRate:        decimal.Zero,
		EffectiveDate:   st.EffectiveDate,
		ExpiryDate:      st.ExpiryDate,
	})
}

// MoveNodeRequest 移动请求
type MoveNodeRequest struct {
	NewParentStructureID string `json:"new_parent_structure_id" binding:"required"`
	Sequence             *int   `json:"sequence"`
}

// MoveNode 把结构连同子树移到同一棵树的另一个父结构下
func (s *TreeService) MoveNode(ctx context.Context, treeID, structureID string, req *MoveNodeRequest, userID string) (*entity.TreeStructure, error) {
	var (
		moved *entity.TreeStructure
		log   *entity.TreeChangeLog
	)
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		tree, err := lockMutableTree(ctx, tx, treeID)
		if err != nil {
			return err
		}
		st, err := structureInTree(ctx, tx, structureID, tree.ID)
		if err != nil {
			return err
		}
		if st.IsRoot() {
			return apperr.Transition("root structure", "root", "be moved")
		}
		if err := rejectShared(ctx, tx, st, false, "structure_id"); err != nil {
			return err
		}
		newParent, err := structureInTree(ctx, tx, req.NewParentStructureID, tree.ID)
		if err != nil {
			return err
		}
		if newParent.ID == st.ID || strings.HasPrefix(newParent.Path, st.Path+".") {
			return apperr.Validation("new_parent_structure_id", "cannot move a structure under itself or its descendants")
		}
		if err := rejectShared(ctx, tx, newParent, true, "new_parent_structure_id"); err != nil {
			return err
		}

		subtree, err := tx.Structure.Subtree(ctx, st)
		if err != nil {
			return err
		}
		ancestors := newParent.NodePath()
		for _, d := range subtree {
			if slices.Contains(ancestors, d.NodeID) {
				return apperr.Validation("new_parent_structure_id", "node would appear twice on one path")
			}
		}

		before := entity.SnapshotOf(st)
		before.Descendants = len(subtree) - 1

		seq, err := nextSequence(ctx, tx, newParent.ID, req.Sequence)
		if err != nil {
			return err
		}
		if err := tx.Structure.UpdateFields(ctx, st.ID, map[string]interface{}{
			"parent_id": newParent.ID,
			"sequence":  seq,
		}); err != nil {
			return apperr.FromStore(err)
		}
		newPath := entity.ChildPath(newParent.Path, st.NodeID)
		if err := tx.Structure.MoveSubtree(ctx, tree.ID, st.Path, newPath, newParent.Level+1-st.Level); err != nil {
			return err
		}

		if moved, err = tx.Structure.FindByID(ctx, st.ID); err != nil {
			return err
		}
		after := entity.SnapshotOf(moved)
		after.Descendants = before.Descendants

		version, err := s.versions.ResolveOpenVersion(ctx, tx, tree, userID)
		if err != nil {
			return err
		}
		log = &entity.TreeChangeLog{
			TreeVersionID:       version.ID,
			ChangedBy:           actor(userID),
			ChangeType:          entity.TreeChangeMoveNode,
			Description:         fmt.Sprintf("structure moved to level %d", moved.Level),
			AffectedNodeID:      &moved.NodeID,
			AffectedStructureID: &moved.ID,
			PreviousData:        entity.ToJSON(before),
			NewData:             entity.ToJSON(after),
		}
		if err := s.versions.Record(ctx, tx, log); err != nil {
			return err
		}
		return tx.Tree.Touch(ctx, tree.ID, "", actor(userID))
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, treeID, log)
	return moved, nil
}

// RemoveNode 删除结构；cascade 为 false 时有子结构则拒绝
func (s *TreeService) RemoveNode(ctx context.Context, treeID, structureID string, cascade bool, userID string) (int, error) {
	var (
		removed int
		log     *entity.TreeChangeLog
	)
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		tree, err := lockMutableTree(ctx, tx, treeID)
		if err != nil {
			return err
		}
		st, err := structureInTree(ctx, tx, structureID, tree.ID)
		if err != nil {
			return err
		}
		if st.IsRoot() {
			return apperr.Transition("root structure", "root", "be removed")
		}
		if err := rejectShared(ctx, tx, st, false, "structure_id"); err != nil {
			return err
		}

		subtree, err := tx.Structure.Subtree(ctx, st)
		if err != nil {
			return err
		}
		if !cascade && len(subtree) > 1 {
			return apperr.Newf(apperr.Conflict, "structure has %d descendants, remove them first or cascade", len(subtree)-1)
		}
		ids := make([]string, 0, len(subtree))
		for _, d := range subtree {
			ids = append(ids, d.ID)
		}
		refs, err := tx.Structure.CountExternalReplicas(ctx, ids)
		if err != nil {
			return err
		}
		if refs > 0 {
			return apperr.Newf(apperr.Conflict, "subtree contains masters shared by %d structures", refs)
		}

		before := entity.SnapshotOf(st)
		before.Descendants = len(subtree) - 1
		if err := tx.Structure.DeleteByIDs(ctx, ids); err != nil {
			return err
		}
		removed = len(ids)

		version, err := s.versions.ResolveOpenVersion(ctx, tx, tree, userID)
		if err != nil {
			return err
		}
		nodeName := st.NodeID
		if st.Node != nil {
			nodeName = st.Node.Name
		}
		log = &entity.TreeChangeLog{
			TreeVersionID:       version.ID,
			ChangedBy:           actor(userID),
			ChangeType:          entity.TreeChangeRemoveNode,
			Description:         fmt.Sprintf("node %s removed with %d descendants", nodeName, len(ids)-1),
			AffectedNodeID:      &st.NodeID,
			AffectedStructureID: &st.ID,
			PreviousData:        entity.ToJSON(before),
		}
		if err := s.versions.Record(ctx, tx, log); err != nil {
			return err
		}
		return tx.Tree.Touch(ctx, tree.ID, "", actor(userID))
	})
	if err != nil {
		return 0, err
	}
	s.finish(ctx, treeID, log)
	return removed, nil
}

// UpdateStructureRequest 修改结构请求
type UpdateStructureRequest struct {
	Quantity         *decimal.Decimal `json:"quantity"`
	RelationshipType *string          `json:"relationship_type"`
	Sequence         *int             `json:"sequence"`
}

// UpdateStructure 修改数量、关系类型或顺序，副本只读
func (s *TreeService) UpdateStructure(ctx context.Context, treeID, structureID string, req *UpdateStructureRequest, userID string) (*entity.TreeStructure, error) {
	var relType entity.RelationshipType
	if req.RelationshipType != nil {
		var err error
		if relType, err = entity.ParseRelationshipType(*req.RelationshipType); err != nil {
			return nil, apperr.Validation("relationship_type", err.Error())
		}
	}
	if req.Quantity != nil && req.Quantity.IsNegative() {
		return nil, apperr.Validation("quantity", "quantity must not be negative")
	}
	if req.Sequence != nil && *req.Sequence < 0 {
		return nil, apperr.Validation("sequence", "sequence must not be negative")
	}

	var (
		updated *entity.TreeStructure
		logs    []*entity.TreeChangeLog
	)
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
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

		before := entity.SnapshotOf(st)
		fields, types := structureChanges(st, req.Quantity, req.RelationshipType != nil, relType, req.Sequence)
		if len(fields) == 0 {
			updated = st
			return nil
		}
		if err := tx.Structure.UpdateFields(ctx, st.ID, fields); err != nil {
			return err
		}
		if updated, err = tx.Structure.FindByID(ctx, st.ID); err != nil {
			return err
		}

		version, err := s.versions.ResolveOpenVersion(ctx, tx, tree, userID)
		if err != nil {
			return err
		}
		after := entity.SnapshotOf(updated)
		for _, t := range types {
			log := &entity.TreeChangeLog{
				TreeVersionID:       version.ID,
				ChangedBy:           actor(userID),
				ChangeType:          t,
				Description:         fmt.Sprintf("structure %s: %s", updated.ID, t),
				AffectedNodeID:      &updated.NodeID,
				AffectedStructureID: &updated.ID,
				SignificanceLevel:   changeLevel(t),
				PreviousData:        entity.ToJSON(before),
				NewData:             entity.ToJSON(after),
			}
			if err := s.versions.Record(ctx, tx, log); err != nil {
				return err
			}
			logs = append(logs, log)
		}
		return tx.Tree.Touch(ctx, tree.ID, "", actor(userID))
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, treeID, logs...)
	return updated, nil
}

// structureChanges 计算需要更新的列及对应的变更类型
func structureChanges(st *entity.TreeStructure, quantity *decimal.Decimal, relSet bool, relType entity.RelationshipType, sequence *int) (map[string]interface{}, []entity.TreeChangeType) {
	fields := map[string]interface{}{}
	var types []entity.TreeChangeType
	if quantity != nil && !quantity.Equal(st.Quantity) {
		fields["quantity"] = *quantity
		types = append(types, entity.TreeChangeUpdateQuantity)
	}
	if relSet && relType != st.RelationshipType {
		fields["relationship_type"] = relType
		types = append(types, entity.TreeChangeUpdateRelationship)
	}
	if sequence != nil && *sequence != st.Sequence {
		fields["sequence"] = *sequence
		if len(types) == 0 {
			types = append(types, entity.TreeChangeUpdateMetadata)
		}
	}
	return fields, types
}

// changeLevel 调用方给出的默认重要度，派生规则会覆盖其中一部分
func changeLevel(t entity.TreeChangeType) int {
	switch t {
	case entity.TreeChangeUpdateMetadata, entity.TreeChangeCommentAdd:
		return 0
	}
	return 1
}

// StructureView get_structure 的一行；副本附带主结构的当前值
type StructureView struct {
	entity.TreeStructure
	IsShared                 bool                     `json:"is_shared"`
	MasterTreeID             string                   `json:"master_tree_id,omitempty"`
	ResolvedQuantity         *decimal.Decimal         `json:"resolved_quantity,omitempty"`
	ResolvedRelationshipType *entity.RelationshipType `json:"resolved_relationship_type,omitempty"`
	IsStale                  bool                     `json:"is_stale"`
}

// GetStructure 整棵树按 level, sequence 排序；resolve 时通过 source_structure 读取主结构的当前值
func (s *TreeService) GetStructure(ctx context.Context, treeID string, resolve bool) ([]StructureView, error) {
	if _, err := s.repos.Tree.FindByID(ctx, treeID); err != nil {
		return nil, err
	}

	var list []entity.TreeStructure
	if !s.cache.Get(ctx, treeID, &list) {
		var err error
		if list, err = s.repos.Structure.ListByTree(ctx, treeID); err != nil {
			return nil, err
		}
		s.cache.Set(ctx, treeID, list)
	}
	// 编码状态不进缓存，每次读取
	if err := s.attachCodes(ctx, list); err != nil {
		return nil, err
	}

	views := make([]StructureView, len(list))
	var masterIDs []string
	for i := range list {
		views[i] = StructureView{TreeStructure: list[i], IsShared: list[i].IsReplica()}
		if resolve && list[i].IsReplica() {
			masterIDs = append(masterIDs, *list[i].SourceStructureID)
		}
	}
	if len(masterIDs) == 0 {
		return views, nil
	}

	masters, err := s.repos.Structure.FindByIDs(ctx, masterIDs)
	if err != nil {
		return nil, err
	}
	for i := range views {
		if !views[i].IsShared {
			continue
		}
		m, ok := masters[*views[i].SourceStructureID]
		if !ok {
			continue
		}
		qty, rel := m.Quantity, m.RelationshipType
		views[i].MasterTreeID = m.TreeID
		views[i].ResolvedQuantity = &qty
		views[i].ResolvedRelationshipType = &rel
		views[i].IsStale = !qty.Equal(views[i].Quantity) || rel != views[i].RelationshipType
	}
	return views, nil
}

// attachCodes 为节点挂上编码的当前状态
func (s *TreeService) attachCodes(ctx context.Context, list []entity.TreeStructure) error {
	var ids []string
	for i := range list {
		if n := list[i].Node; n != nil && n.CodeID != nil {
			ids = append(ids, *n.CodeID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	codes, err := s.repos.Code.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range list {
		if n := list[i].Node; n != nil && n.CodeID != nil {
			n.Code = codes[*n.CodeID]
		}
	}
	return nil
}

// BulkStructureItem 批量更新的一行，按 (父节点, 子节点) 定位
type BulkStructureItem struct {
	ParentNodeID     string           `json:"parent_node_id" binding:"required"`
	ChildNodeID      string           `json:"child_node_id" binding:"required"`
	Quantity         *decimal.Decimal `json:"quantity"`
	Sequence         *int             `json:"sequence"`
	RelationshipType string           `json:"relationship_type"`
}

// BulkResult 批量更新结果
type BulkResult struct {
	UpdatedCount int `json:"updated_count"`
	CreatedCount int `json:"created_count"`
	SkippedCount int `json:"skipped_count"`
}

// BulkUpdate 批量更新或新增结构，全部在一个事务内
func (s *TreeService) BulkUpdate(ctx context.Context, treeID string, items []BulkStructureItem, userID string) (*BulkResult, error) {
	if len(items) == 0 {
		return nil, apperr.Validation("structures", "structures must not be empty")
	}
	relTypes := make([]entity.RelationshipType, len(items))
	for i, item := range items {
		if item.ParentNodeID == "" || item.ChildNodeID == "" {
			return nil, apperr.Validation(fmt.Sprintf("structures[%d]", i), "parent_node_id and child_node_id are required")
		}
		if item.Quantity != nil && item.Quantity.IsNegative() {
			return nil, apperr.Validation(fmt.Sprintf("structures[%d].quantity", i), "quantity must not be negative")
		}
		if item.RelationshipType != "" {
			rt, err := entity.ParseRelationshipType(item.RelationshipType)
			if err != nil {
				return nil, apperr.Validation(fmt.Sprintf("structures[%d].relationship_type", i), err.Error())
			}
			relTypes[i] = rt
		}
	}

	var (
		result BulkResult
		logs   []*entity.TreeChangeLog
	)
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		tree, err := lockMutableTree(ctx, tx, treeID)
		if err != nil {
			return err
		}
		version, err := s.versions.ResolveOpenVersion(ctx, tx, tree, userID)
		if err != nil {
			return err
		}
		record := func(log *entity.TreeChangeLog) error {
			log.TreeVersionID = version.ID
			log.ChangedBy = actor(userID)
			if err := s.versions.Record(ctx, tx, log); err != nil {
				return err
			}
			logs = append(logs, log)
			return nil
		}

		for i, item := range items {
			existing, err := tx.Structure.FindByParentNode(ctx, tree.ID, item.ParentNodeID, item.ChildNodeID)
			if err != nil {
				return err
			}

			if existing != nil {
				shared, err := sharedAncestor(ctx, tx, existing, true)
				if err != nil {
					return err
				}
				if shared != nil {
					result.SkippedCount++
					continue
				}
				before := entity.SnapshotOf(existing)
				fields, types := structureChanges(existing, item.Quantity, item.RelationshipType != "", relTypes[i], item.Sequence)
				if len(fields) > 0 {
					if err := tx.Structure.UpdateFields(ctx, existing.ID, fields); err != nil {
						return err
					}
					after, err := tx.Structure.FindByID(ctx, existing.ID)
					if err != nil {
						return err
					}
					for _, t := range types {
						if err := record(&entity.TreeChangeLog{
							ChangeType:          t,
							Description:         "bulk update",
							AffectedNodeID:      &existing.NodeID,
							AffectedStructureID: &existing.ID,
							SignificanceLevel:   changeLevel(t),
							PreviousData:        entity.ToJSON(before),
							NewData:             entity.ToJSON(entity.SnapshotOf(after)),
						}); err != nil {
							return err
						}
					}
				}
				result.UpdatedCount++
				continue
			}

			parent, err := tx.Structure.FirstOfNode(ctx, tree.ID, item.ParentNodeID)
			if err != nil {
				return err
			}
			shared, err := sharedAncestor(ctx, tx, parent, true)
			if err != nil {
				return err
			}
			if shared != nil {
				result.SkippedCount++
				continue
			}
			node, err := tx.Tree.FindNode(ctx, item.ChildNodeID)
			if err != nil {
				return err
			}
			if node.NodeType == entity.NodeTypeRoot || slices.Contains(parent.NodePath(), node.ID) {
				return apperr.Validation(fmt.Sprintf("structures[%d].child_node_id", i), "node cannot be placed under its own ancestor chain")
			}
			seq, err := nextSequence(ctx, tx, parent.ID, item.Sequence)
			if err != nil {
				return err
			}
			quantity := decimal.NewFromInt(1)
			if item.Quantity != nil {
				quantity = *item.Quantity
			}
			relType := relTypes[i]
			if relType == "" {
				relType = entity.RelationshipAssembly
			}
			st := &entity.TreeStructure{
				ID:               repository.NewID(),
				TreeID:           tree.ID,
				NodeID:           node.ID,
				ParentID:         &parent.ID,
				Level:            parent.Level + 1,
				Path:             entity.ChildPath(parent.Path, node.ID),
				Sequence:         seq,
				RelationshipType: relType,
				Quantity:         quantity,
				EffectiveDate:    now(),
			}
			if err := tx.Structure.Create(ctx, st); err != nil {
				return apperr.FromStore(err)
			}
			if err := record(&entity.TreeChangeLog{
				ChangeType:          entity.TreeChangeAddNode,
				Description:         fmt.Sprintf("node %s added by bulk update", node.Name),
				AffectedNodeID:      &node.ID,
				AffectedStructureID: &st.ID,
				SignificanceLevel:   1,
				NewData:             entity.ToJSON(entity.SnapshotOf(st)),
			}); err != nil {
				return err
			}
			result.CreatedCount++
		}
		return tx.Tree.Touch(ctx, tree.ID, "", actor(userID))
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, treeID, logs...)
	return &result, nil
}

// Activate draft → active
func (s *TreeService) Activate(ctx context.Context, treeID, userID string) (*entity.Tree, error) {
	return s.transitionTree(ctx, treeID, userID, "activate", entity.TreeStatusActive, entity.TreeStatusDraft)
}

// Archive active → archived
func (s *TreeService) Archive(ctx context.Context, treeID, userID string) (*entity.Tree, error) {
	return s.transitionTree(ctx, treeID, userID, "be archived", entity.TreeStatusArchived, entity.TreeStatusActive)
}

// Lock active → locked
func (s *TreeService) Lock(ctx context.Context, treeID, userID string) (*entity.Tree, error) {
	return s.transitionTree(ctx, treeID, userID, "be locked", entity.TreeStatusLocked, entity.TreeStatusActive)
}

// Unlock locked → active
func (s *TreeService) Unlock(ctx context.Context, treeID, userID string) (*entity.Tree, error) {
	return s.transitionTree(ctx, treeID, userID, "be unlocked", entity.TreeStatusActive, entity.TreeStatusLocked)
}

func (s *TreeService) transitionTree(ctx context.Context, treeID, userID, action string, to entity.TreeStatus, from ...entity.TreeStatus) (*entity.Tree, error) {
	var (
		tree *entity.Tree
		log  *entity.TreeChangeLog
	)
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		if tree, err = tx.Tree.FindForUpdate(ctx, treeID); err != nil {
			return err
		}
		if !slices.Contains(from, tree.Status) {
			return apperr.Transition("tree", string(tree.Status), action)
		}
		prev := tree.Status
		if err := tx.Tree.Touch(ctx, tree.ID, to, actor(userID)); err != nil {
			return err
		}
		tree.Status = to
		tree.LastModifiedBy = actor(userID)

		version, err := s.versions.ResolveOpenVersion(ctx, tx, tree, userID)
		if err != nil {
			return err
		}
		log = &entity.TreeChangeLog{
			TreeVersionID:     version.ID,
			ChangedBy:         actor(userID),
			ChangeType:        entity.TreeChangeStatusChange,
			Description:       fmt.Sprintf("tree %s → %s", prev, to),
			SignificanceLevel: 1,
			PreviousData:      entity.ToJSON(entity.StatusDetail{From: string(prev)}),
			NewData:           entity.ToJSON(entity.StatusDetail{To: string(to)}),
		}
		return s.versions.Record(ctx, tx, log)
	})
	if err != nil {
		return nil, err
	}
	s.versions.Dispatch(ctx, treeID, log)
	return tree, nil
}

// DeleteTree 删除树，树内主结构仍被其他树共享时拒绝
func (s *TreeService) DeleteTree(ctx context.Context, treeID string) error {
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		tree, err := tx.Tree.FindForUpdate(ctx, treeID)
		if err != nil {
			return err
		}
		list, err := tx.Structure.ListByTree(ctx, tree.ID)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(list))
		for _, st := range list {
			ids = append(ids, st.ID)
		}
		refs, err := tx.Structure.CountExternalReplicas(ctx, ids)
		if err != nil {
			return err
		}
		if refs > 0 {
			return apperr.Newf(apperr.Conflict, "tree %s has masters shared by %d structures in other trees", tree.Name, refs)
		}
		return tx.Tree.Delete(ctx, tree.ID)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, treeID)
	return nil
}

// finish 提交后清缓存并分发变更
func (s *TreeService) finish(ctx context.Context, treeID string, logs ...*entity.TreeChangeLog) {
	s.cache.Invalidate(ctx, treeID)
	s.versions.Dispatch(ctx, treeID, logs...)
}

// sharedAncestor st 所在共享子树中最近的副本结构，withSelf 为 false 时只看祖先
func sharedAncestor(ctx context.Context, tx *repository.Repositories, st *entity.TreeStructure, withSelf bool) (*entity.TreeStructure, error) {
	nodes := st.NodePath()
	n := len(nodes)
	if !withSelf {
		n--
	}
	paths := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		paths = append(paths, strings.Join(nodes[:i], "."))
	}
	return tx.Structure.NearestReplica(ctx, st.TreeID, paths)
}

// rejectShared 共享子树只读，只能通过主结构修改；withSelf 为 false 时允许操作副本顶层
func rejectShared(ctx context.Context, tx *repository.Repositories, st *entity.TreeStructure, withSelf bool, field string) error {
	replica, err := sharedAncestor(ctx, tx, st, withSelf)
	if err != nil {
		return err
	}
	if replica == nil {
		return nil
	}
	if replica.ID == st.ID {
		return apperr.Validation(field, "shared structures are read-only, edit the master instead")
	}
	return apperr.Validation(field, "structure belongs to a shared subtree, operate on its top structure or the master")
}

// lockMutableTree 行锁读取树，归档或锁定的树不允许改结构
func lockMutableTree(ctx context.Context, tx *repository.Repositories, treeID string) (*entity.Tree, error) {
	tree, err := tx.Tree.FindForUpdate(ctx, treeID)
	if err != nil {
		return nil, err
	}
	if !tree.Mutable() {
		return nil, apperr.Transition("tree", string(tree.Status), "be modified")
	}
	return tree, nil
}

// structureInTree 读取结构并校验其属于该树
func structureInTree(ctx context.Context, tx *repository.Repositories, structureID, treeID string) (*entity.TreeStructure, error) {
	st, err := tx.Structure.FindByID(ctx, structureID)
	if err != nil {
		return nil, err
	}
	if st.TreeID != treeID {
		return nil, apperr.Newf(apperr.CrossTreeViolation, "structure %s belongs to tree %s, not %s", st.ID, st.TreeID, treeID)
	}
	return st, nil
}

// nextSequence 未指定时追加到末尾
func nextSequence(ctx context.Context, tx *repository.Repositories, parentID string, requested *int) (int, error) {
	if requested != nil {
		if *requested < 0 {
			return 0, apperr.Validation("sequence", "sequence must not be negative")
		}
		return *requested, nil
	}
	n, err := tx.Structure.CountChildren(ctx, parentID)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
