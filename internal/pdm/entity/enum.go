package entity

import "fmt"

// CodeType 编码类型
type CodeType string

const (
	CodeTypeAssembly  CodeType = "assembly"
	CodeTypePart      CodeType = "part"
	CodeTypePurchased CodeType = "purchased"
)

// CodeStatus 编码状态
type CodeStatus string

const (
	CodeStatusDraft    CodeStatus = "draft"
	CodeStatusActive   CodeStatus = "active"
	CodeStatusObsolete CodeStatus = "obsolete"
)

// VersionStatus 编码版本与树版本共用的审批状态
type VersionStatus string

const (
	VersionStatusDraft    VersionStatus = "draft"
	VersionStatusReview   VersionStatus = "review"
	VersionStatusApproved VersionStatus = "approved"
	VersionStatusObsolete VersionStatus = "obsolete"
	VersionStatusRejected VersionStatus = "rejected"
)

// CodeChangeType 编码变更类型
type CodeChangeType string

const (
	CodeChangeCreate       CodeChangeType = "create"
	CodeChangeVersionUp    CodeChangeType = "version_up"
	CodeChangeStatusChange CodeChangeType = "status_change"
	CodeChangeReview       CodeChangeType = "review"
	CodeChangeApprove      CodeChangeType = "approve"
	CodeChangeReject       CodeChangeType = "reject"
	CodeChangeObsolete     CodeChangeType = "obsolete"
)

// Unit 计量单位
type Unit string

const (
	UnitPiece    Unit = "piece"
	UnitMeter    Unit = "meter"
	UnitKilogram Unit = "kilogram"
	UnitLiter    Unit = "liter"
	UnitSet      Unit = "set"
	UnitSheet    Unit = "sheet"
	UnitRoll     Unit = "roll"
	UnitOther    Unit = "other"
)

// TreeStatus 树状态
type TreeStatus string

const (
	TreeStatusDraft    TreeStatus = "draft"
	TreeStatusActive   TreeStatus = "active"
	TreeStatusArchived TreeStatus = "archived"
	TreeStatusLocked   TreeStatus = "locked"
)

// NodeType 节点类型
type NodeType string

const (
	NodeTypeRoot  NodeType = "root"
	NodeTypeCode  NodeType = "code"
	NodeTypeGroup NodeType = "group"
)

// NodeStatus 节点状态
type NodeStatus string

const (
	NodeStatusActive   NodeStatus = "active"
	NodeStatusInactive NodeStatus = "inactive"
)

// RelationshipType 父子关系类型
type RelationshipType string

const (
	RelationshipAssembly  RelationshipType = "assembly"
	RelationshipReference RelationshipType = "reference"
	RelationshipOption    RelationshipType = "option"
	RelationshipSpare     RelationshipType = "spare"
	RelationshipAlternate RelationshipType = "alternate"
	RelationshipPhantom   RelationshipType = "phantom"
)

// TreeChangeType 树结构变更类型
type TreeChangeType string

const (
	TreeChangeAddNode            TreeChangeType = "add_node"
	TreeChangeRemoveNode         TreeChangeType = "remove_node"
	TreeChangeMoveNode           TreeChangeType = "move_node"
	TreeChangeUpdateQuantity     TreeChangeType = "update_quantity"
	TreeChangeUpdateRelationship TreeChangeType = "update_relationship"
	TreeChangeShareStructure     TreeChangeType = "share_structure"
	TreeChangeUnshareStructure   TreeChangeType = "unshare_structure"
	TreeChangeUpdateMetadata     TreeChangeType = "update_metadata"
	TreeChangeVersionUp          TreeChangeType = "version_up"
	TreeChangeStatusChange       TreeChangeType = "status_change"
	TreeChangeApprovalChange     TreeChangeType = "approval_change"
	TreeChangeCommentAdd         TreeChangeType = "comment_add"
)

var (
	codeTypes = map[CodeType]struct{}{
		CodeTypeAssembly: {}, CodeTypePart: {}, CodeTypePurchased: {},
	}
	codeStatuses = map[CodeStatus]struct{}{
		CodeStatusDraft: {}, CodeStatusActive: {}, CodeStatusObsolete: {},
	}
	units = map[Unit]struct{}{
		UnitPiece: {}, UnitMeter: {}, UnitKilogram: {}, UnitLiter: {},
		UnitSet: {}, UnitSheet: {}, UnitRoll: {}, UnitOther: {},
	}
	nodeTypes = map[NodeType]struct{}{
		NodeTypeRoot: {}, NodeTypeCode: {}, NodeTypeGroup: {},
	}
	relationshipTypes = map[RelationshipType]struct{}{
		RelationshipAssembly: {}, RelationshipReference: {}, RelationshipOption: {},
		RelationshipSpare: {}, RelationshipAlternate: {}, RelationshipPhantom: {},
	}
	treeChangeTypes = map[TreeChangeType]struct{}{
		TreeChangeAddNode: {}, TreeChangeRemoveNode: {}, TreeChangeMoveNode: {},
		TreeChangeUpdateQuantity: {}, TreeChangeUpdateRelationship: {},
		TreeChangeShareStructure: {}, TreeChangeUnshareStructure: {},
		TreeChangeUpdateMetadata: {}, TreeChangeVersionUp: {}, TreeChangeStatusChange: {},
		TreeChangeApprovalChange: {}, TreeChangeCommentAdd: {},
	}
)

func (t CodeType) Valid() bool {
	_, ok := codeTypes[t]
	return ok
}

func (s CodeStatus) Valid() bool {
	_, ok := codeStatuses[s]
	return ok
}

func (u Unit) Valid() bool {
	_, ok := units[u]
	return ok
}

func (n NodeType) Valid() bool {
	_, ok := nodeTypes[n]
	return ok
}

func (r RelationshipType) Valid() bool {
	_, ok := relationshipTypes[r]
	return ok
}

func (c TreeChangeType) Valid() bool {
	_, ok := treeChangeTypes[c]
	return ok
}

// ParseCodeType 解析编码类型，兼容旧系统的 1/2/3 取值
func ParseCodeType(s string) (CodeType, error) {
	switch s {
	case "1":
		return CodeTypeAssembly, nil
	case "2":
		return CodeTypePart, nil
	case "3":
		return CodeTypePurchased, nil
	}
	t := CodeType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown code_type %q", s)
	}
	return t, nil
}

// ParseRelationshipType 空值按 assembly 处理
func ParseRelationshipType(s string) (RelationshipType, error) {
	if s == "" {
		return RelationshipAssembly, nil
	}
	r := RelationshipType(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown relationship_type %q", s)
	}
	return r, nil
}

// ParseNodeType 空值按 group 处理
func ParseNodeType(s string) (NodeType, error) {
	if s == "" {
		return NodeTypeGroup, nil
	}
	n := NodeType(s)
	if !n.Valid() {
		return "", fmt.Errorf("unknown node_type %q", s)
	}
	return n, nil
}

// ParseUnit 空值按 piece 处理
func ParseUnit(s string) (Unit, error) {
	if s == "" {
		return UnitPiece, nil
	}
	u := Unit(s)
	if !u.Valid() {
		return "", fmt.Errorf("unknown unit %q", s)
	}
	return u, nil
}

// VersionAction 版本审批动作
type VersionAction string

const (
	VersionActionSubmit   VersionAction = "submit_for_review"
	VersionActionApprove  VersionAction = "approve"
	VersionActionReject   VersionAction = "reject"
	VersionActionObsolete VersionAction = "make_obsolete"
)

// versionTransitions draft→review→approved→obsolete，review→rejected，review→obsolete
var versionTransitions = map[VersionAction]struct {
	from []VersionStatus
	to   VersionStatus
}{
	VersionActionSubmit:   {[]VersionStatus{VersionStatusDraft}, VersionStatusReview},
	VersionActionApprove:  {[]VersionStatus{VersionStatusReview}, VersionStatusApproved},
	VersionActionReject:   {[]VersionStatus{VersionStatusReview}, VersionStatusRejected},
	VersionActionObsolete: {[]VersionStatus{VersionStatusApproved, VersionStatusReview}, VersionStatusObsolete},
}

// NextVersionStatus 返回动作后的状态，不允许时 ok 为 false
func NextVersionStatus(from VersionStatus, action VersionAction) (VersionStatus, bool) {
	t, ok := versionTransitions[action]
	if !ok {
		return from, false
	}
	for _, s := range t.from {
		if s == from {
			return t.to, true
		}
	}
	return from, false
}
