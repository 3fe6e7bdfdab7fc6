package service

import (
	"context"
	"sync"
	"testing"

	"github.com/bitfantasy/pdm/internal/config"
	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"github.com/bitfantasy/pdm/internal/pdm/repository"
	pdmtest "github.com/bitfantasy/pdm/internal/pdm/testutil"
	"github.com/bitfantasy/pdm/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type countingNotifier struct {
	mu    sync.Mutex
	calls []ChangeNotification
}

func (n *countingNotifier) Notify(_ context.Context, cn ChangeNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, cn)
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func setupServices(t *testing.T) (*Services, *countingNotifier) {
	t.Helper()
	return setupServicesWithDepth(t, 32)
}

func setupServicesWithDepth(t *testing.T, maxShareDepth int) (*Services, *countingNotifier) {
	t.Helper()
	db := pdmtest.SetupTestDB(t)
	svcs := NewServices(repository.NewRepositories(db), nil, &config.Config{
		PDM: config.PDMConfig{MaxShareDepth: maxShareDepth},
	})
	notifier := &countingNotifier{}
	svcs.Version.SetNotifier(notifier, false)
	return svcs, notifier
}

func newTree(t *testing.T, svcs *Services, name string) *CreateTreeResult {
	t.Helper()
	result, err := svcs.Tree.CreateTree(context.Background(), &CreateTreeRequest{Name: name}, "u1")
	require.NoError(t, err)
	return result
}

func addNode(t *testing.T, svcs *Services, treeID, parentID, name string, master bool) *entity.TreeStructure {
	t.Helper()
	st, err := svcs.Tree.AddNode(context.Background(), treeID, &AddNodeRequest{
		ParentStructureID: parentID,
		Name:              name,
		IsMaster:          master,
	}, "u1")
	require.NoError(t, err)
	return st
}

// viewOfNode 树中引用 nodeID 的第一个结构
func viewOfNode(t *testing.T, svcs *Services, treeID, nodeID string) StructureView {
	t.Helper()
	views, err := svcs.Tree.GetStructure(context.Background(), treeID, false)
	require.NoError(t, err)
	for _, v := range views {
		if v.NodeID == nodeID {
			return v
		}
	}
	t.Fatalf("node %s not found in tree %s", nodeID, treeID)
	return StructureView{}
}

func TestConcurrentGenerateCodeIsUnique(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	prefix, err := svcs.Prefix.Create(ctx, &CreatePrefixRequest{Name: "AAA", CodeType: "assembly"})
	require.NoError(t, err)

	const n = 10
	codes := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			code, err := svcs.Prefix.GenerateCode(ctx, prefix.ID)
			codes[i] = code
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]bool, n)
	for _, c := range codes {
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
	assert.True(t, seen["AAA-A0001Z000"])
	assert.True(t, seen["AAA-A0010Z000"])

	preview, err := svcs.Prefix.Preview(ctx, prefix.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAA-A0011Z000", preview.PreviewCode)
}

func TestCodeVersionUpKeepsSingleCurrent(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	prefix, err := svcs.Prefix.Create(ctx, &CreatePrefixRequest{Name: "BBB", CodeType: "part"})
	require.NoError(t, err)
	weight := decimal.RequireFromString("1.5")
	created, err := svcs.Code.Create(ctx, &CreateCodeRequest{
		PrefixID: prefix.ID,
		Name:     "外壳",
		Metadata: &MetadataInput{Unit: "piece", Material: "ABS", Weight: &weight},
	}, "u1")
	require.NoError(t, err)
	assert.Equal(t, "BBB-AA0001Z000", created.Code.Code)

	v2, err := svcs.Code.VersionUp(ctx, created.Code.ID, "u1", &VersionUpRequest{Reason: "换料"})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	meta, err := svcs.Code.GetMetadata(ctx, v2.ID)
	require.NoError(t, err)
	assert.Equal(t, "ABS", meta.Material)

	versions, err := svcs.Code.ListVersions(ctx, created.Code.ID)
	require.NoError(t, err)
	current := 0
	for _, v := range versions {
		if v.IsCurrent {
			current++
			assert.Equal(t, v2.ID, v.ID)
		}
	}
	assert.Equal(t, 1, current)

	_, err = svcs.Code.SetCurrent(ctx, created.Version.ID, "u1")
	require.NoError(t, err)
	versions, err = svcs.Code.ListVersions(ctx, created.Code.ID)
	require.NoError(t, err)
	for _, v := range versions {
		assert.Equal(t, v.ID == created.Version.ID, v.IsCurrent, "version %d", v.Version)
	}

	// 草稿不能直接审批
	_, err = svcs.Code.Approve(ctx, v2.ID, "u2")
	assert.True(t, apperr.Is(err, apperr.InvalidTransition))
}

func TestShareResyncAndUnshare(t *testing.T) {
	svcs, notifier := setupServices(t)
	ctx := context.Background()

	a := newTree(t, svcs, "A")
	b := newTree(t, svcs, "B")
	x := addNode(t, svcs, a.Tree.ID, a.RootStructure.ID, "X", true)
	addNode(t, svcs, a.Tree.ID, x.ID, "Y", false)

	shared, err := svcs.Share.Share(ctx, b.Tree.ID, &ShareRequest{
		SourceStructureID: x.ID,
		ParentStructureID: b.RootStructure.ID,
	}, "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, shared.ClonedCount)
	replica := shared.Structure

	resolved, err := svcs.Share.ResolveMaster(ctx, replica.ID)
	require.NoError(t, err)
	assert.Equal(t, x.ID, resolved.ID)

	// 副本下不能直接添加
	_, err = svcs.Tree.AddNode(ctx, b.Tree.ID, &AddNodeRequest{ParentStructureID: replica.ID, Name: "Q"}, "u2")
	assert.True(t, apperr.Is(err, apperr.ValidationError))

	qty := decimal.NewFromInt(3)
	_, err = svcs.Tree.UpdateStructure(ctx, a.Tree.ID, x.ID, &UpdateStructureRequest{Quantity: &qty}, "u1")
	require.NoError(t, err)
	addNode(t, svcs, a.Tree.ID, x.ID, "Z", false)

	result, err := svcs.Share.ResyncReplicas(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ReplicaCount)
	assert.Equal(t, 1, result.UpdatedCount)
	assert.Equal(t, 1, result.ClonedCount)

	views, err := svcs.Tree.GetStructure(ctx, b.Tree.ID, true)
	require.NoError(t, err)
	assert.Len(t, views, 4)
	for _, v := range views {
		if v.ID == replica.ID {
			assert.True(t, v.Quantity.Equal(qty))
			assert.False(t, v.IsStale)
		}
	}

	// 主结构被引用时不能删除
	_, err = svcs.Tree.RemoveNode(ctx, a.Tree.ID, x.ID, true, "u1")
	assert.True(t, apperr.Is(err, apperr.Conflict))

	before := notifier.count()
	top, err := svcs.Share.Unshare(ctx, b.Tree.ID, replica.ID, "u2")
	require.NoError(t, err)
	assert.True(t, top.IsMaster)
	assert.Nil(t, top.SourceStructureID)
	assert.Equal(t, before+1, notifier.count())

	replicas, err := svcs.Share.ListReplicas(ctx, x.ID)
	require.NoError(t, err)
	assert.Empty(t, replicas)

	// 同一条日志不会重复通知
	logs, err := svcs.Version.ListChanges(ctx, repository.ChangeLogFilter{
		TreeID:     b.Tree.ID,
		ChangeType: string(entity.TreeChangeUnshareStructure),
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].RequiresApproval)
	svcs.Version.Dispatch(ctx, b.Tree.ID, &logs[0])
	assert.Equal(t, before+1, notifier.count())

	approved, err := svcs.Version.ApproveChange(ctx, logs[0].ID, "u1")
	require.NoError(t, err)
	assert.NotNil(t, approved.ApprovedAt)
	_, err = svcs.Version.ApproveChange(ctx, logs[0].ID, "u1")
	assert.True(t, apperr.Is(err, apperr.InvalidTransition))
}

func TestMoveNodeRejectsCycle(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	tree := newTree(t, svcs, "M")
	a := addNode(t, svcs, tree.Tree.ID, tree.RootStructure.ID, "A", false)
	b := addNode(t, svcs, tree.Tree.ID, a.ID, "B", false)

	_, err := svcs.Tree.MoveNode(ctx, tree.Tree.ID, a.ID, &MoveNodeRequest{NewParentStructureID: b.ID}, "u1")
	assert.True(t, apperr.Is(err, apperr.ValidationError))

	_, err = svcs.Tree.MoveNode(ctx, tree.Tree.ID, tree.RootStructure.ID, &MoveNodeRequest{NewParentStructureID: a.ID}, "u1")
	assert.True(t, apperr.Is(err, apperr.InvalidTransition))

	moved, err := svcs.Tree.MoveNode(ctx, tree.Tree.ID, b.ID, &MoveNodeRequest{NewParentStructureID: tree.RootStructure.ID}, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, moved.Level)
	assert.Equal(t, tree.RootStructure.ID, *moved.ParentID)
}

func TestArchivedTreeIsImmutable(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	tree := newTree(t, svcs, "归档")
	_, err := svcs.Tree.Archive(ctx, tree.Tree.ID, "u1")
	assert.True(t, apperr.Is(err, apperr.InvalidTransition))

	_, err = svcs.Tree.Activate(ctx, tree.Tree.ID, "u1")
	require.NoError(t, err)
	archived, err := svcs.Tree.Archive(ctx, tree.Tree.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.TreeStatusArchived, archived.Status)

	_, err = svcs.Tree.AddNode(ctx, tree.Tree.ID, &AddNodeRequest{ParentStructureID: tree.RootStructure.ID, Name: "N"}, "u1")
	assert.True(t, apperr.Is(err, apperr.InvalidTransition))
	_, err = svcs.Version.CreateVersion(ctx, tree.Tree.ID, "u1", &CreateVersionRequest{})
	assert.True(t, apperr.Is(err, apperr.InvalidTransition))
}

func TestGeneratedCodeCountedAfterCommit(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	prefix, err := svcs.Prefix.Create(ctx, &CreatePrefixRequest{Name: "MTR", CodeType: "part"})
	require.NoError(t, err)
	counter := metrics.CodesGenerated.WithLabelValues("part")

	before := testutil.ToFloat64(counter)
	_, err = svcs.Code.Create(ctx, &CreateCodeRequest{PrefixID: prefix.ID, Name: "螺钉"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))

	// 重置后再次生成同一编码，事务回滚不计数
	_, err = svcs.Prefix.Reset(ctx, prefix.ID, 1)
	require.NoError(t, err)
	_, err = svcs.Code.Create(ctx, &CreateCodeRequest{PrefixID: prefix.ID, Name: "螺母"}, "u1")
	require.Error(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestSharedSubtreeIsReadOnlyAtEveryLevel(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	a := newTree(t, svcs, "A")
	b := newTree(t, svcs, "B")
	x := addNode(t, svcs, a.Tree.ID, a.RootStructure.ID, "X", true)
	y := addNode(t, svcs, a.Tree.ID, x.ID, "Y", false)
	z := addNode(t, svcs, a.Tree.ID, y.ID, "Z", false)

	shared, err := svcs.Share.Share(ctx, b.Tree.ID, &ShareRequest{
		SourceStructureID: x.ID,
		ParentStructureID: b.RootStructure.ID,
	}, "u2")
	require.NoError(t, err)
	assert.Equal(t, 3, shared.ClonedCount)

	yCopy := viewOfNode(t, svcs, b.Tree.ID, y.NodeID)
	zCopy := viewOfNode(t, svcs, b.Tree.ID, z.NodeID)
	assert.False(t, yCopy.IsReplica())
	p := addNode(t, svcs, b.Tree.ID, b.RootStructure.ID, "P", false)

	_, err = svcs.Tree.AddNode(ctx, b.Tree.ID, &AddNodeRequest{ParentStructureID: yCopy.ID, Name: "Q"}, "u2")
	assert.True(t, apperr.Is(err, apperr.ValidationError))
	_, err = svcs.Tree.AddNode(ctx, b.Tree.ID, &AddNodeRequest{ParentStructureID: zCopy.ID, Name: "Q"}, "u2")
	assert.True(t, apperr.Is(err, apperr.ValidationError))

	_, err = svcs.Tree.MoveNode(ctx, b.Tree.ID, p.ID, &MoveNodeRequest{NewParentStructureID: yCopy.ID}, "u2")
	assert.True(t, apperr.Is(err, apperr.ValidationError))
	_, err = svcs.Tree.MoveNode(ctx, b.Tree.ID, zCopy.ID, &MoveNodeRequest{NewParentStructureID: b.RootStructure.ID}, "u2")
	assert.True(t, apperr.Is(err, apperr.ValidationError))

	qty := decimal.NewFromInt(7)
	_, err = svcs.Tree.UpdateStructure(ctx, b.Tree.ID, zCopy.ID, &UpdateStructureRequest{Quantity: &qty}, "u2")
	assert.True(t, apperr.Is(err, apperr.ValidationError))
	_, err = svcs.Tree.RemoveNode(ctx, b.Tree.ID, yCopy.ID, true, "u2")
	assert.True(t, apperr.Is(err, apperr.ValidationError))

	bulk, err := svcs.Tree.BulkUpdate(ctx, b.Tree.ID, []BulkStructureItem{
		{ParentNodeID: y.NodeID, ChildNodeID: z.NodeID, Quantity: &qty},
		{ParentNodeID: y.NodeID, ChildNodeID: p.NodeID},
	}, "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, bulk.SkippedCount)
	assert.Zero(t, bulk.UpdatedCount)
	assert.Zero(t, bulk.CreatedCount)

	// 副本顶层仍可整体移动
	_, err = svcs.Tree.MoveNode(ctx, b.Tree.ID, shared.Structure.ID, &MoveNodeRequest{NewParentStructureID: p.ID}, "u2")
	require.NoError(t, err)
	assert.Len(t, mustStructure(t, svcs, b.Tree.ID), 5)
}

func TestResyncSkipsChildRepeatingOnReplicaPath(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	t2 := newTree(t, svcs, "T2")
	t1 := newTree(t, svcs, "T1")
	x := addNode(t, svcs, t2.Tree.ID, t2.RootStructure.ID, "X", true)
	y := addNode(t, svcs, t1.Tree.ID, t1.RootStructure.ID, "Y", false)

	_, err := svcs.Share.Share(ctx, t1.Tree.ID, &ShareRequest{
		SourceStructureID: x.ID,
		ParentStructureID: y.ID,
	}, "u1")
	require.NoError(t, err)

	// T2 内 X 下放 Y 合法，同步到 T1 会形成 Y.X.Y
	yInT2, err := svcs.Tree.AddNode(ctx, t2.Tree.ID, &AddNodeRequest{ParentStructureID: x.ID, NodeID: y.NodeID}, "u1")
	require.NoError(t, err)
	addNode(t, svcs, t2.Tree.ID, x.ID, "W", false)

	result, err := svcs.Share.ResyncReplicas(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ClonedCount)
	assert.Equal(t, []string{yInT2.ID}, result.SkippedStructures)

	views := mustStructure(t, svcs, t1.Tree.ID)
	assert.Len(t, views, 4)
	for _, v := range views {
		nodes := v.NodePath()
		assert.Len(t, nodes, len(uniqueStrings(nodes)), "path %s repeats a node", v.Path)
	}
}

func TestShareGuards(t *testing.T) {
	svcs, _ := setupServicesWithDepth(t, 2)
	ctx := context.Background()

	a := newTree(t, svcs, "A")
	b := newTree(t, svcs, "B")
	x := addNode(t, svcs, a.Tree.ID, a.RootStructure.ID, "X", true)
	y := addNode(t, svcs, a.Tree.ID, x.ID, "Y", false)

	t.Run("target inside shared structure", func(t *testing.T) {
		_, err := svcs.Share.Share(ctx, a.Tree.ID, &ShareRequest{SourceStructureID: x.ID, ParentStructureID: y.ID}, "u1")
		var appErr *apperr.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperr.ValidationError, appErr.Kind)
		assert.Equal(t, "source_structure_id", appErr.Field)
	})

	t.Run("plain structure is not a master", func(t *testing.T) {
		_, err := svcs.Share.Share(ctx, b.Tree.ID, &ShareRequest{SourceStructureID: y.ID, ParentStructureID: b.RootStructure.ID}, "u1")
		assert.True(t, apperr.Is(err, apperr.NotAMasterStructure), "got %v", err)
	})

	t.Run("root cannot be shared", func(t *testing.T) {
		_, err := svcs.Share.Share(ctx, b.Tree.ID, &ShareRequest{SourceStructureID: a.RootStructure.ID, ParentStructureID: b.RootStructure.ID}, "u1")
		assert.True(t, apperr.Is(err, apperr.ValidationError), "got %v", err)
	})

	t.Run("depth limit", func(t *testing.T) {
		shared, err := svcs.Share.Share(ctx, b.Tree.ID, &ShareRequest{SourceStructureID: x.ID, ParentStructureID: b.RootStructure.ID}, "u1")
		require.NoError(t, err)
		assert.Equal(t, 2, shared.ClonedCount)

		c := newTree(t, svcs, "C")
		addNode(t, svcs, a.Tree.ID, y.ID, "Z", false)
		_, err = svcs.Share.Share(ctx, c.Tree.ID, &ShareRequest{SourceStructureID: x.ID, ParentStructureID: c.RootStructure.ID}, "u1")
		assert.True(t, apperr.Is(err, apperr.ValidationError), "got %v", err)
		assert.Len(t, mustStructure(t, svcs, c.Tree.ID), 1)
	})
}

func TestMoveRewritesDescendantPaths(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	tree := newTree(t, svcs, "P")
	a := addNode(t, svcs, tree.Tree.ID, tree.RootStructure.ID, "A", false)
	b := addNode(t, svcs, tree.Tree.ID, a.ID, "B", false)
	c := addNode(t, svcs, tree.Tree.ID, b.ID, "C", false)
	d := addNode(t, svcs, tree.Tree.ID, tree.RootStructure.ID, "D", false)

	_, err := svcs.Tree.MoveNode(ctx, tree.Tree.ID, b.ID, &MoveNodeRequest{NewParentStructureID: d.ID}, "u1")
	require.NoError(t, err)

	views := mustStructure(t, svcs, tree.Tree.ID)
	byID := make(map[string]StructureView, len(views))
	for _, v := range views {
		byID[v.ID] = v
	}
	for _, v := range views {
		if v.ParentID == nil {
			assert.Equal(t, 0, v.Level)
			continue
		}
		parent := byID[*v.ParentID]
		assert.Equal(t, parent.Path+"."+v.NodeID, v.Path, "structure %s", v.ID)
		assert.Equal(t, parent.Level+1, v.Level, "structure %s", v.ID)
	}
	assert.Equal(t, entity.ChildPath(entity.ChildPath(d.Path, b.NodeID), c.NodeID), byID[c.ID].Path)
	assert.Equal(t, 3, byID[c.ID].Level)
}

func TestQuantityDeleteRespectsTreeState(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	prefix, err := svcs.Prefix.Create(ctx, &CreatePrefixRequest{Name: "QTY", CodeType: "part"})
	require.NoError(t, err)
	code, err := svcs.Code.Create(ctx, &CreateCodeRequest{PrefixID: prefix.ID, Name: "垫片", Status: "active"}, "u1")
	require.NoError(t, err)

	tree := newTree(t, svcs, "Q")
	st := addNode(t, svcs, tree.Tree.ID, tree.RootStructure.ID, "S", false)
	q, err := svcs.Quantity.Upsert(ctx, tree.Tree.ID, st.ID, &UpsertQuantityRequest{
		CodeVersionID: code.Version.ID,
		Quantity:      decimal.NewFromInt(4),
	}, "u1")
	require.NoError(t, err)

	_, err = svcs.Tree.Activate(ctx, tree.Tree.ID, "u1")
	require.NoError(t, err)
	_, err = svcs.Tree.Lock(ctx, tree.Tree.ID, "u1")
	require.NoError(t, err)

	err = svcs.Quantity.Delete(ctx, q.ID)
	assert.True(t, apperr.Is(err, apperr.InvalidTransition), "got %v", err)
	list, err := svcs.Quantity.List(ctx, st.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svcs.Tree.Unlock(ctx, tree.Tree.ID, "u1")
	require.NoError(t, err)
	require.NoError(t, svcs.Quantity.Delete(ctx, q.ID))
	list, err = svcs.Quantity.List(ctx, st.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	err = svcs.Quantity.Delete(ctx, q.ID)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestStructureReportsCurrentCodeStatus(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	prefix, err := svcs.Prefix.Create(ctx, &CreatePrefixRequest{Name: "STS", CodeType: "part"})
	require.NoError(t, err)
	code, err := svcs.Code.Create(ctx, &CreateCodeRequest{PrefixID: prefix.ID, Name: "支架", Status: "active"}, "u1")
	require.NoError(t, err)

	tree := newTree(t, svcs, "S")
	st, err := svcs.Tree.AddNode(ctx, tree.Tree.ID, &AddNodeRequest{
		ParentStructureID: tree.RootStructure.ID,
		CodeID:            code.Code.ID,
		Name:              "支架",
	}, "u1")
	require.NoError(t, err)

	v := viewOfNode(t, svcs, tree.Tree.ID, st.NodeID)
	require.NotNil(t, v.Node.Code)
	assert.Equal(t, entity.CodeStatusActive, v.Node.Code.Status)

	_, err = svcs.Code.Obsolete(ctx, code.Code.ID, "u1", "停产")
	require.NoError(t, err)
	v = viewOfNode(t, svcs, tree.Tree.ID, st.NodeID)
	require.NotNil(t, v.Node.Code)
	assert.Equal(t, entity.CodeStatusObsolete, v.Node.Code.Status)
}

func mustStructure(t *testing.T, svcs *Services, treeID string) []StructureView {
	t.Helper()
	views, err := svcs.Tree.GetStructure(context.Background(), treeID, false)
	require.NoError(t, err)
	return views
}

func uniqueStrings(list []string) map[string]bool {
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		seen[s] = true
	}
	return seen
}
