// Package apperr 定义 PDM 的错误分类，以及到 HTTP 状态码的映射。
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind 错误类别
type Kind int

const (
	Internal Kind = iota
	InvalidConfiguration
	InvalidTransition
	NotFound
	DuplicateStructure
	UniqueConstraintViolation
	CrossTreeViolation
	ValidationError
	NotAMasterStructure
	Conflict
)

var kindNames = map[Kind]string{
	Internal:                  "INTERNAL",
	InvalidConfiguration:      "INVALID_CONFIGURATION",
	InvalidTransition:         "INVALID_TRANSITION",
	NotFound:                  "NOT_FOUND",
	DuplicateStructure:        "DUPLICATE_STRUCTURE",
	UniqueConstraintViolation: "UNIQUE_CONSTRAINT_VIOLATION",
	CrossTreeViolation:        "CROSS_TREE_VIOLATION",
	ValidationError:           "VALIDATION_ERROR",
	NotAMasterStructure:       "NOT_A_MASTER_STRUCTURE",
	Conflict:                  "CONFLICT",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "INTERNAL"
}

// HTTPStatus 类别对应的 HTTP 状态码
func (k Kind) HTTPStatus() int {
	switch k {
	case InvalidTransition, DuplicateStructure, UniqueConstraintViolation, Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case CrossTreeViolation, ValidationError, NotAMasterStructure:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error 业务错误。Message 可直接展示给调用方，Err 只用于日志
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NotFoundf 记录不存在
func NotFoundf(entity, id string) *Error {
	return &Error{Kind: NotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// Validation 字段级校验错误
func Validation(field, message string) *Error {
	return &Error{Kind: ValidationError, Field: field, Message: message}
}

// Transition 状态机不允许的流转
func Transition(entity, from, action string) *Error {
	return &Error{
		Kind:    InvalidTransition,
		Message: fmt.Sprintf("%s in status %s cannot %s", entity, from, action),
	}
}

// KindOf 取错误类别，非业务错误视为 Internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is 判断错误类别
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StructureUniqueIndex 结构 (tree, node, parent) 唯一索引名
const StructureUniqueIndex = "uk_pdm_structure_tree_node_parent"

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// FromStore 把存储层错误翻译为业务错误，无法识别的原样返回
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Wrap(NotFound, err, "record not found")
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Wrap(UniqueConstraintViolation, err, "duplicate record")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if pgErr.ConstraintName == StructureUniqueIndex {
				return Wrap(DuplicateStructure, err, "structure already exists under this parent")
			}
			return Wrap(UniqueConstraintViolation, err, "duplicate value violates "+pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return Wrap(NotFound, err, "referenced record not found")
		}
	}
	return err
}
