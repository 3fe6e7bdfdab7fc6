package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/bitfantasy/pdm/internal/metrics"
	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"github.com/bitfantasy/pdm/internal/pdm/repository"
)

// ShareService 结构共享：主结构解析、子树克隆、副本同步与解除
type ShareService struct {
	repos    *repository.Repositories
	versions *TreeVersionService
	cache    *StructureCache
	maxDepth int
}

func NewShareService(repos *repository.Repositories, versions *TreeVersionService, cache *StructureCache, maxDepth int) *ShareService {
	if maxDepth <= 0 {
		maxDepth = 32
	}
	return &ShareService{repos: repos, versions: versions, cache: cache, maxDepth: maxDepth}
}

// ShareRequest 共享请求
type ShareRequest struct {
	SourceStructureID string `json:"source_structure_id" binding:"required"`
	ParentStructureID string `json:"parent_structure_id" binding:"required"`
}

// ShareResult 共享结果
type ShareResult struct {
	Structure   *entity.TreeStructure `json:"structure"`
	ClonedCount int                   `json:"cloned_count"`
}

// sourceOf 克隆体指向的主结构：自身是主结构则指向自身，否则沿用其 source
func sourceOf(st *entity.TreeStructure) *string {
	if st.IsMaster {
		id := st.ID
		return &id
	}
	if st.SourceStructureID == nil {
		return nil
	}
	id := *st.SourceStructureID
	return &id
}

// childrenIndex 按父结构分组，保持 level, sequence 顺序
func childrenIndex(list []entity.TreeStructure) map[string][]entity.TreeStructure {
	idx := make(map[string][]entity.TreeStructure, len(list))
	for _, st := range list {
		if st.ParentID != nil {
			idx[*st.ParentID] = append(idx[*st.ParentID], st)
		}
	}
	return idx
}

// subtreeNodes top 子树（含自身）引用的节点
func subtreeNodes(top *entity.TreeStructure, children map[string][]entity.TreeStructure) []string {
	nodes := []string{top.NodeID}
	queue := []string{top.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, c := range children[id] {
			nodes = append(nodes, c.NodeID)
			queue = append(queue, c.ID)
		}
	}
	return nodes
}

// subtreeDepth 子树层数，单个结构为 1
func subtreeDepth(top *entity.TreeStructure, list []entity.TreeStructure) int {
	deepest := top.Level
	for _, st := range list {
		if st.Level > deepest {
			deepest = st.Level
		}
	}
	return deepest - top.Level + 1
}

// Share 把 source 解析到的主结构子树克隆到目标树的 parent 下
func (s *ShareService) Share(ctx context.Context, treeID string, req *ShareRequest, userID string) (*ShareResult, error) {
	var (
		result ShareResult
		logs   []*entity.TreeChangeLog
	)
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		tree, err := lockMutableTree(ctx, tx, treeID)
		if err != nil {
			return err
		}
		master, err := s.resolveMaster(ctx, tx, req.SourceStructureID)
		if err != nil {
			return err
		}
		if master.IsRoot() || (master.Node != nil && master.Node.NodeType == entity.NodeTypeRoot) {
			return apperr.Validation("source_structure_id", "root structures cannot be shared")
		}
		parent, err := structureInTree(ctx, tx, req.ParentStructureID, tree.ID)
		if err != nil {
			return err
		}
		if err := rejectShared(ctx, tx, parent, true, "parent_structure_id"); err != nil {
			return err
		}

		subtree, err := tx.Structure.Subtree(ctx, master)
		if err != nil {
			return err
		}
		if depth := subtreeDepth(master, subtree); depth > s.maxDepth {
			return apperr.Validation("source_structure_id",
				fmt.Sprintf("shared subtree has %d levels, the limit is %d", depth, s.maxDepth))
		}
		ancestors := parent.NodePath()
		for _, st := range subtree {
			if slices.Contains(ancestors, st.NodeID) {
				return apperr.Validation("source_structure_id", "target parent lies inside the shared structure")
			}
		}

		seq, err := nextSequence(ctx, tx, parent.ID, nil)
		if err != nil {
			return err
		}
		created, err := s.cloneSubtree(ctx, tx, tree.ID, master, childrenIndex(subtree), parent, seq)
		if err != nil {
			return err
		}
		top := created[0]

		version, err := s.versions.ResolveOpenVersion(ctx, tx, tree, userID)
		if err != nil {
			return err
		}
		detail := entity.ShareDetail{
			StructureID:       top.ID,
			ParentID:          parent.ID,
			SourceStructureID: master.ID,
			SourceTreeID:      master.TreeID,
			ClonedCount:       len(created),
		}
		if sourceTree, err := tx.Tree.FindByID(ctx, master.TreeID); err == nil {
			detail.SourceTreeName = sourceTree.Name
		}
		shareLog := &entity.TreeChangeLog{
			TreeVersionID:       version.ID,
			ChangedBy:           actor(userID),
			ChangeType:          entity.TreeChangeShareStructure,
			Description:         fmt.Sprintf("structure %s shared from tree %s", master.ID, master.TreeID),
			AffectedNodeID:      &top.NodeID,
			AffectedStructureID: &top.ID,
			NewData:             entity.ToJSON(detail),
		}
		if err := s.versions.Record(ctx, tx, shareLog); err != nil {
			return err
		}
		logs = append(logs, shareLog)

		// 递归克隆出的子结构由系统记录
		for _, st := range created[1:] {
			log := &entity.TreeChangeLog{
				TreeVersionID:       version.ID,
				ChangeType:          entity.TreeChangeAddNode,
				Description:         "cloned by structure share",
				AffectedNodeID:      &st.NodeID,
				AffectedStructureID: &st.ID,
				SignificanceLevel:   0,
				NewData:             entity.ToJSON(entity.SnapshotOf(st)),
			}
			if err := s.versions.Record(ctx, tx, log); err != nil {
				return err
			}
			logs = append(logs, log)
		}

		if err := tx.Tree.Touch(ctx, tree.ID, "", actor(userID)); err != nil {
			return err
		}
		top.Node = master.Node
		result = ShareResult{Structure: top, ClonedCount: len(created)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.StructuresShared.Inc()
	metrics.StructuresCloned.Add(float64(result.ClonedCount))
	s.cache.Invalidate(ctx, treeID)
	s.versions.Dispatch(ctx, treeID, logs...)
	return &result, nil
}

type cloneItem struct {
	src    entity.TreeStructure
	parent *entity.TreeStructure
}

// cloneSubtree 以显式队列逐层克隆 src 子树到 parent 下，返回的第一个元素为顶层克隆
func (s *ShareService) cloneSubtree(ctx context.Context, tx *repository.Repositories, treeID string, src *entity.TreeStructure, children map[string][]entity.TreeStructure, parent *entity.TreeStructure, topSequence int) ([]*entity.TreeStructure, error) {
	var created []*entity.TreeStructure
	queue := []cloneItem{{src: *src, parent: parent}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if item.parent.Level+1-parent.Level > s.maxDepth {
			return nil, apperr.Validation("source_structure_id", "shared subtree exceeds the depth limit")
		}
		seq := item.src.Sequence
		if len(created) == 0 {
			seq = topSequence
		}
		clone := &entity.TreeStructure{
			ID:                repository.NewID(),
			TreeID:            treeID,
			NodeID:            item.src.NodeID,
			ParentID:          &item.parent.ID,
			Level:             item.parent.Level + 1,
			Path:              entity.ChildPath(item.parent.Path, item.src.NodeID),
			Sequence:          seq,
			RelationshipType:  item.src.RelationshipType,
			IsMaster:          false,
			SourceStructureID: sourceOf(&item.src),
			Quantity:          item.src.Quantity,
			EffectiveDate:     now(),
			ExpiryDate:        item.src.ExpiryDate,
		}
		if err := tx.Structure.Create(ctx, clone); err != nil {
			return nil, apperr.FromStore(err)
		}
		created = append(created, clone)

		for _, child := range children[item.src.ID] {
			queue = append(queue, cloneItem{src: child, parent: clone})
		}
	}
	return created, nil
}

// ResolveMaster 沿 source_structure 解析到主结构
func (s *ShareService) ResolveMaster(ctx context.Context, structureID string) (*entity.TreeStructure, error) {
	return s.resolveMaster(ctx, s.repos, structureID)
}

func (s *ShareService) resolveMaster(ctx context.Context, repos *repository.Repositories, structureID string) (*entity.TreeStructure, error) {
	st, err := repos.Structure.FindByID(ctx, structureID)
	if err != nil {
		return nil, err
	}
	for hops := 0; !st.IsMaster; hops++ {
		if st.SourceStructureID == nil {
			return nil, apperr.Newf(apperr.NotAMasterStructure, "structure %s has no master structure", structureID)
		}
		if hops >= s.maxDepth {
			return nil, apperr.Newf(apperr.NotAMasterStructure, "source chain of structure %s does not end at a master", structureID)
		}
		if st, err = repos.Structure.FindByID(ctx, *st.SourceStructureID); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// ListReplicas 主结构的全部副本
func (s *ShareService) ListReplicas(ctx context.Context, masterID string) ([]entity.TreeStructure, error) {
	master, err := s.repos.Structure.FindByID(ctx, masterID)
	if err != nil {
		return nil, err
	}
	if !master.IsMaster {
		return nil, apperr.Newf(apperr.NotAMasterStructure, "structure %s is not a master", masterID)
	}
	return s.repos.Structure.Replicas(ctx, master.ID)
}

// ResyncResult 副本同步结果
type ResyncResult struct {
	ReplicaCount      int      `json:"replica_count"`
	UpdatedCount      int      `json:"updated_count"`
	ClonedCount       int      `json:"cloned_count"`
	SkippedTrees      []string `json:"skipped_trees"`
	SkippedStructures []string `json:"skipped_structures"`
}

type syncPair struct {
	master  entity.TreeStructure
	replica entity.TreeStructure
}

// ResyncReplicas 把主结构子树的数量、关系类型与缺失的子结构同步到每个副本
func (s *ShareService) ResyncReplicas(ctx context.Context, masterID string) (*ResyncResult, error) {
	result := ResyncResult{SkippedTrees: []string{}, SkippedStructures: []string{}}
	type pending struct {
		treeID string
		log    *entity.TreeChangeLog
	}
	var dispatched []pending

	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		master, err := tx.Structure.FindByID(ctx, masterID)
		if err != nil {
			return err
		}
		if !master.IsMaster {
			return apperr.Newf(apperr.NotAMasterStructure, "structure %s is not a master", masterID)
		}
		masterSubtree, err := tx.Structure.Subtree(ctx, master)
		if err != nil {
			return err
		}
		masterChildren := childrenIndex(masterSubtree)

		replicas, err := tx.Structure.Replicas(ctx, master.ID)
		if err != nil {
			return err
		}
		result.ReplicaCount = len(replicas)

		for i := range replicas {
			replica := replicas[i]
			tree, err := tx.Tree.FindForUpdate(ctx, replica.TreeID)
			if err != nil {
				return err
			}
			if !tree.Mutable() {
				result.SkippedTrees = append(result.SkippedTrees, tree.ID)
				continue
			}
			replicaSubtree, err := tx.Structure.Subtree(ctx, &replica)
			if err != nil {
				return err
			}
			replicaChildren := childrenIndex(replicaSubtree)

			updated, cloned := 0, 0
			queue := []syncPair{{master: *master, replica: replica}}
			for len(queue) > 0 {
				p := queue[0]
				queue = queue[1:]

				if !p.replica.Quantity.Equal(p.master.Quantity) || p.replica.RelationshipType != p.master.RelationshipType {
					if err := tx.Structure.UpdateFields(ctx, p.replica.ID, map[string]interface{}{
						"quantity":          p.master.Quantity,
						"relationship_type": p.master.RelationshipType,
					}); err != nil {
						return err
					}
					updated++
				}

				existing := make(map[string]entity.TreeStructure)
				for _, c := range replicaChildren[p.replica.ID] {
					existing[c.NodeID] = c
				}
				for _, mc := range masterChildren[p.master.ID] {
					if rc, ok := existing[mc.NodeID]; ok {
						queue = append(queue, syncPair{master: mc, replica: rc})
						continue
					}
					// 克隆后节点会在副本路径上重复出现时跳过
					ancestors := p.replica.NodePath()
					if slices.ContainsFunc(subtreeNodes(&mc, masterChildren), func(id string) bool {
						return slices.Contains(ancestors, id)
					}) {
						result.SkippedStructures = append(result.SkippedStructures, mc.ID)
						continue
					}
					parent := p.replica
					created, err := s.cloneSubtree(ctx, tx, tree.ID, &mc, masterChildren, &parent, mc.Sequence)
					if err != nil {
						return err
					}
					cloned += len(created)
				}
			}
			if updated == 0 && cloned == 0 {
				continue
			}
			result.UpdatedCount += updated
			result.ClonedCount += cloned

			version, err := s.versions.ResolveOpenVersion(ctx, tx, tree, "")
			if err != nil {
				return err
			}
			log := &entity.TreeChangeLog{
				TreeVersionID:       version.ID,
				ChangeType:          entity.TreeChangeUpdateQuantity,
				Description:         fmt.Sprintf("resynced from master %s: %d updated, %d cloned", master.ID, updated, cloned),
				AffectedNodeID:      &replica.NodeID,
				AffectedStructureID: &replica.ID,
				SignificanceLevel:   0,
				NewData: entity.ToJSON(map[string]interface{}{
					"source_structure_id": master.ID,
					"updated_count":       updated,
					"cloned_count":        cloned,
				}),
			}
			if err := s.versions.Record(ctx, tx, log); err != nil {
				return err
			}
			dispatched = append(dispatched, pending{treeID: tree.ID, log: log})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.StructuresCloned.Add(float64(result.ClonedCount))
	for _, p := range dispatched {
		s.cache.Invalidate(ctx, p.treeID)
		s.versions.Dispatch(ctx, p.treeID, p.log)
	}
	return &result, nil
}

// Unshare 解除副本与主结构的关联：顶层变为主结构，其余成为普通结构
func (s *ShareService) Unshare(ctx context.Context, treeID, structureID, userID string) (*entity.TreeStructure, error) {
	var (
		top *entity.TreeStructure
		log *entity.TreeChangeLog
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
		if !st.IsReplica() {
			return apperr.Validation("structure_id", "structure is not a shared replica")
		}
		outer, err := sharedAncestor(ctx, tx, st, false)
		if err != nil {
			return err
		}
		if outer != nil {
			return apperr.Validation("structure_id", "unshare the top structure of the shared subtree")
		}

		subtree, err := tx.Structure.Subtree(ctx, st)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(subtree))
		for _, d := range subtree {
			ids = append(ids, d.ID)
		}
		before := entity.ShareDetail{
			StructureID:       st.ID,
			ParentID:          *st.ParentID,
			SourceStructureID: *st.SourceStructureID,
			ClonedCount:       len(ids),
		}
		if err := tx.Structure.Detach(ctx, st.ID, ids); err != nil {
			return err
		}
		if top, err = tx.Structure.FindByID(ctx, st.ID); err != nil {
			return err
		}

		version, err := s.versions.ResolveOpenVersion(ctx, tx, tree, userID)
		if err != nil {
			return err
		}
		log = &entity.TreeChangeLog{
			TreeVersionID:       version.ID,
			ChangedBy:           actor(userID),
			ChangeType:          entity.TreeChangeUnshareStructure,
			Description:         fmt.Sprintf("structure %s detached from master %s", st.ID, before.SourceStructureID),
			AffectedNodeID:      &st.NodeID,
			AffectedStructureID: &st.ID,
			SignificanceLevel:   2,
			RequiresApproval:    true,
			PreviousData:        entity.ToJSON(before),
			NewData:             entity.ToJSON(entity.SnapshotOf(top)),
		}
		if err := s.versions.Record(ctx, tx, log); err != nil {
			return err
		}
		return tx.Tree.Touch(ctx, tree.ID, "", actor(userID))
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, treeID)
	s.versions.Dispatch(ctx, treeID, log)
	return top, nil
}
