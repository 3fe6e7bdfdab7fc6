package entity

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSignificance(t *testing.T) {
	cases := []struct {
		changeType TreeChangeType
		level      int
		requires   bool
	}{
		{TreeChangeRemoveNode, 2, true},
		{TreeChangeShareStructure, 2, true},
		{TreeChangeVersionUp, 2, true},
		{TreeChangeMoveNode, 1, true},
		{TreeChangeUpdateRelationship, 1, true},
		{TreeChangeAddNode, 0, false},
		{TreeChangeUpdateQuantity, 3, false},
	}
	for _, c := range cases {
		l := TreeChangeLog{ChangeType: c.changeType}
		if c.changeType == TreeChangeUpdateQuantity {
			l.SignificanceLevel = 3
		}
		l.ApplySignificance()
		assert.Equal(t, c.level, l.SignificanceLevel, string(c.changeType))
		assert.Equal(t, c.requires, l.RequiresApproval, string(c.changeType))
	}
}

func TestNeedsNotification(t *testing.T) {
	l := TreeChangeLog{SignificanceLevel: 2}
	assert.True(t, l.NeedsNotification())
	l.NotificationSent = true
	assert.False(t, l.NeedsNotification())
	assert.False(t, (&TreeChangeLog{SignificanceLevel: 1}).NeedsNotification())
}

func TestParseCodeType(t *testing.T) {
	ct, err := ParseCodeType("assembly")
	require.NoError(t, err)
	assert.Equal(t, CodeTypeAssembly, ct)

	ct, err = ParseCodeType("3")
	require.NoError(t, err)
	assert.Equal(t, CodeTypePurchased, ct)

	_, err = ParseCodeType("bundle")
	assert.Error(t, err)
}

func TestParseDefaults(t *testing.T) {
	r, err := ParseRelationshipType("")
	require.NoError(t, err)
	assert.Equal(t, RelationshipAssembly, r)
	_, err = ParseRelationshipType("glue")
	assert.Error(t, err)

	n, err := ParseNodeType("")
	require.NoError(t, err)
	assert.Equal(t, NodeTypeGroup, n)

	u, err := ParseUnit("")
	require.NoError(t, err)
	assert.Equal(t, UnitPiece, u)
	_, err = ParseUnit("box")
	assert.Error(t, err)
}

func TestStructureHelpers(t *testing.T) {
	master := "m1"
	root := TreeStructure{ID: "r", NodeID: "n0", Path: "n0", IsMaster: true}
	assert.True(t, root.IsRoot())
	id, ok := root.MasterID()
	assert.True(t, ok)
	assert.Equal(t, "r", id)

	replica := TreeStructure{ID: "x", ParentID: &root.ID, NodeID: "n1", Path: ChildPath(root.Path, "n1"), SourceStructureID: &master}
	assert.Equal(t, "n0.n1", replica.Path)
	assert.Equal(t, []string{"n0", "n1"}, replica.NodePath())
	assert.True(t, replica.IsReplica())
	id, ok = replica.MasterID()
	assert.True(t, ok)
	assert.Equal(t, "m1", id)

	plain := TreeStructure{ID: "p"}
	_, ok = plain.MasterID()
	assert.False(t, ok)
	assert.Equal(t, "n9", ChildPath("", "n9"))
}

func TestSnapshotJSON(t *testing.T) {
	s := &TreeStructure{ID: "s1", NodeID: "n1", Path: "n0.n1", Level: 1, Quantity: decimal.NewFromInt(2), RelationshipType: RelationshipSpare}
	raw := ToJSON(SnapshotOf(s))
	require.NotNil(t, raw)

	var back map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "s1", back["structure_id"])
	assert.Equal(t, "spare", back["relationship_type"])
	assert.Equal(t, "2", back["quantity"])
	assert.Nil(t, ToJSON(nil))
}

func TestNextVersionStatus(t *testing.T) {
	cases := []struct {
		from   VersionStatus
		action VersionAction
		to     VersionStatus
		ok     bool
	}{
		{VersionStatusDraft, VersionActionSubmit, VersionStatusReview, true},
		{VersionStatusReview, VersionActionApprove, VersionStatusApproved, true},
		{VersionStatusReview, VersionActionReject, VersionStatusRejected, true},
		{VersionStatusApproved, VersionActionObsolete, VersionStatusObsolete, true},
		{VersionStatusReview, VersionActionObsolete, VersionStatusObsolete, true},
		{VersionStatusDraft, VersionActionApprove, VersionStatusDraft, false},
		{VersionStatusDraft, VersionActionReject, VersionStatusDraft, false},
		{VersionStatusDraft, VersionActionObsolete, VersionStatusDraft, false},
		{VersionStatusObsolete, VersionActionSubmit, VersionStatusObsolete, false},
		{VersionStatusRejected, VersionActionApprove, VersionStatusRejected, false},
		{VersionStatusApproved, "archive", VersionStatusApproved, false},
	}
	for _, c := range cases {
		to, ok := NextVersionStatus(c.from, c.action)
		assert.Equal(t, c.ok, ok, "%s %s", c.from, c.action)
		assert.Equal(t, c.to, to, "%s %s", c.from, c.action)
	}
}
