package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"github.com/bitfantasy/pdm/internal/pdm/sse"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func strp(s string) *string { return &s }

func TestFormatCode(t *testing.T) {
	cases := []struct {
		name     string
		codeType entity.CodeType
		number   int64
		want     string
	}{
		{"AAA", entity.CodeTypeAssembly, 1, "AAA-A0001Z000"},
		{"BBB", entity.CodeTypePart, 12, "BBB-AA0012Z000"},
		{"CCC", entity.CodeTypePurchased, 5, "CCC-A0005Z00"},
		// 超过四位不截断
		{"AAA", entity.CodeTypeAssembly, 12345, "AAA-A12345Z000"},
	}
	for _, tc := range cases {
		got, err := FormatCode(&entity.Prefix{Name: tc.name, CodeType: tc.codeType}, tc.number)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := FormatCode(&entity.Prefix{Name: "XXX", CodeType: "unknown"}, 1)
	assert.True(t, apperr.Is(err, apperr.InvalidConfiguration))
}

func TestStakeholders(t *testing.T) {
	tree := &entity.Tree{CreatedBy: strp("u1"), LastModifiedBy: strp("u2")}
	version := &entity.TreeVersion{CreatedBy: strp("u1"), ApprovedBy: strp("")}

	assert.Equal(t, []string{"u1", "u2"}, Stakeholders(tree, version))
	assert.Equal(t, []string{"u1", "u2"}, Stakeholders(tree, nil))
	assert.Empty(t, Stakeholders(&entity.Tree{}, nil))
}

func TestStructureChanges(t *testing.T) {
	st := &entity.TreeStructure{
		Quantity:         decimal.NewFromInt(2),
		RelationshipType: entity.RelationshipAssembly,
		Sequence:         3,
	}

	same := decimal.NewFromInt(2)
	fields, types := structureChanges(st, &same, false, "", nil)
	assert.Empty(t, fields)
	assert.Empty(t, types)

	qty := decimal.NewFromInt(5)
	seq := 1
	fields, types = structureChanges(st, &qty, true, entity.RelationshipReference, &seq)
	assert.Len(t, fields, 3)
	assert.Equal(t, []entity.TreeChangeType{entity.TreeChangeUpdateQuantity, entity.TreeChangeUpdateRelationship}, types)

	// 只改顺序视为元数据变更
	fields, types = structureChanges(st, nil, false, "", &seq)
	assert.Equal(t, map[string]interface{}{"sequence": 1}, fields)
	assert.Equal(t, []entity.TreeChangeType{entity.TreeChangeUpdateMetadata}, types)
	assert.Equal(t, 0, changeLevel(types[0]))
	assert.Equal(t, 1, changeLevel(entity.TreeChangeUpdateQuantity))
}

func TestSourceOf(t *testing.T) {
	master := &entity.TreeStructure{ID: "m1", IsMaster: true}
	assert.Equal(t, "m1", *sourceOf(master))

	replica := &entity.TreeStructure{ID: "r1", SourceStructureID: strp("m1")}
	assert.Equal(t, "m1", *sourceOf(replica))

	assert.Nil(t, sourceOf(&entity.TreeStructure{ID: "p1"}))
}

func TestChildrenIndexAndDepth(t *testing.T) {
	top := entity.TreeStructure{ID: "a", Level: 1}
	list := []entity.TreeStructure{
		top,
		{ID: "b", ParentID: strp("a"), Level: 2, Sequence: 1},
		{ID: "c", ParentID: strp("a"), Level: 2, Sequence: 2},
		{ID: "d", ParentID: strp("b"), Level: 3},
	}

	idx := childrenIndex(list)
	require.Len(t, idx["a"], 2)
	assert.Equal(t, "b", idx["a"][0].ID)
	assert.Equal(t, "c", idx["a"][1].ID)
	assert.Len(t, idx["b"], 1)
	assert.Empty(t, idx["d"])

	assert.Equal(t, 3, subtreeDepth(&top, list))
	assert.Equal(t, 1, subtreeDepth(&top, list[:1]))
}

func TestCalculateLines(t *testing.T) {
	now := time.Now()
	expired := now.Add(-time.Hour)
	list := []entity.TreeCodeQuantity{
		{
			ID:            "q1",
			CodeVersionID: "v1",
			Quantity:      decimal.NewFromInt(10),
			Denominator:   decimal.NewFromInt(5),
			LossRate:      decimal.NewFromInt(10),
			Unit:          entity.UnitPiece,
			EffectiveDate: now.Add(-24 * time.Hour),
			CodeVersion:   &entity.CodeVersion{CodeNumber: "AAA-A0001Z000"},
		},
		{
			ID:            "q2",
			CodeVersionID: "v2",
			Quantity:      decimal.NewFromInt(1),
			Denominator:   decimal.NewFromInt(1),
			LossRate:      decimal.Zero,
			MinimumOrder:  decimal.NewNullDecimal(decimal.NewFromInt(50)),
			Unit:          entity.UnitPiece,
			EffectiveDate: now.Add(-48 * time.Hour),
			ExpiryDate:    &expired,
		},
	}

	lines := calculateLines(list, decimal.NewFromInt(10), now)
	require.Len(t, lines, 2)

	assert.Equal(t, "AAA-A0001Z000", lines[0].CodeNumber)
	assert.True(t, lines[0].EffectiveQuantity.Equal(decimal.RequireFromString("2.2")), "got %s", lines[0].EffectiveQuantity)
	assert.True(t, lines[0].RequiredOrderQuantity.Equal(decimal.NewFromInt(22)))
	assert.True(t, lines[0].Valid)

	assert.True(t, lines[1].RequiredOrderQuantity.Equal(decimal.NewFromInt(50)))
	assert.False(t, lines[1].Valid)
}

func TestUpsertQuantityDefaults(t *testing.T) {
	req := &UpsertQuantityRequest{CodeVersionID: "v1", Quantity: decimal.NewFromInt(3)}
	q, err := req.toEntity("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", q.TreeStructureID)
	assert.True(t, q.Denominator.Equal(decimal.NewFromInt(1)))
	assert.True(t, q.LossRate.IsZero())
	assert.Equal(t, entity.UnitPiece, q.Unit)
	assert.False(t, q.MinimumOrder.Valid)

	zero := decimal.Zero
	req.Denominator = &zero
	_, err = req.toEntity("s1")
	assert.True(t, apperr.Is(err, apperr.ValidationError))

	_, err = (&UpsertQuantityRequest{CodeVersionID: "v1", Quantity: decimal.NewFromInt(1), Unit: "bucket"}).toEntity("s1")
	assert.True(t, apperr.Is(err, apperr.ValidationError))
}

func TestTextEncoding(t *testing.T) {
	for _, name := range []string{"", "utf8", "UTF-8"} {
		enc, err := textEncoding(name)
		require.NoError(t, err)
		assert.Nil(t, enc)
	}
	enc, err := textEncoding("GBK")
	require.NoError(t, err)
	assert.Equal(t, simplifiedchinese.GBK, enc)

	_, err = textEncoding("latin1")
	assert.True(t, apperr.Is(err, apperr.ValidationError))
}

func TestRenderCSVGBK(t *testing.T) {
	rows := [][]string{{"1", "主板"}}
	data, err := renderCSV(rows, simplifiedchinese.GBK)
	require.NoError(t, err)

	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(data)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "1,主板")
	assert.Contains(t, string(decoded), exportHeaders[0])

	plain, err := renderCSV(rows, nil)
	require.NoError(t, err)
	assert.Contains(t, string(plain), "主板")
}

func TestRenderXLSX(t *testing.T) {
	data, err := renderXLSX([][]string{{"1", "主板"}})
	require.NoError(t, err)
	// xlsx 是 zip 容器
	assert.Equal(t, []byte("PK"), data[:2])
}

func TestNilCacheIsNoop(t *testing.T) {
	ctx := context.Background()
	var list []entity.TreeStructure

	c := NewStructureCache(nil, time.Minute)
	assert.False(t, c.Get(ctx, "t1", &list))
	c.Set(ctx, "t1", list)
	c.Invalidate(ctx, "t1")

	var nilCache *StructureCache
	assert.False(t, nilCache.Get(ctx, "t1", &list))
	nilCache.Invalidate(ctx, "t1")
}

func TestDispatchPublishesTreeChange(t *testing.T) {
	hub := sse.NewHub()
	client := &sse.Client{ID: "c1", TreeID: "t1", Events: make(chan sse.Event, 4)}
	hub.Register(client)
	defer hub.Unregister("c1")

	svc := NewTreeVersionService(nil, nil, hub)
	svc.Dispatch(context.Background(), "t1", &entity.TreeChangeLog{
		ID:                  "log1",
		ChangeType:          entity.TreeChangeAddNode,
		AffectedStructureID: strp("s1"),
		SignificanceLevel:   1,
	})

	select {
	case ev := <-client.Events:
		assert.Equal(t, "tree:changed", ev.EventType)
		var change sse.TreeChange
		require.NoError(t, json.Unmarshal([]byte(ev.Data), &change))
		assert.Equal(t, "s1", change.StructureID)
		assert.Equal(t, "log1", change.ChangeLogID)
	default:
		t.Fatal("expected a tree:changed event")
	}

	// 其他树的事件不推送给该订阅者
	svc.Dispatch(context.Background(), "t2", &entity.TreeChangeLog{ID: "log2", ChangeType: entity.TreeChangeAddNode})
	assert.Len(t, client.Events, 0)
}
