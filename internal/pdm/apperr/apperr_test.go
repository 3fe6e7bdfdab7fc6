package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestKindHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		InvalidConfiguration:      http.StatusInternalServerError,
		InvalidTransition:         http.StatusConflict,
		NotFound:                  http.StatusNotFound,
		DuplicateStructure:        http.StatusConflict,
		UniqueConstraintViolation: http.StatusConflict,
		CrossTreeViolation:        http.StatusBadRequest,
		ValidationError:           http.StatusBadRequest,
		NotAMasterStructure:       http.StatusBadRequest,
		Conflict:                  http.StatusConflict,
		Internal:                  http.StatusInternalServerError,
	}
	for k, want := range cases {
		assert.Equal(t, want, k.HTTPStatus(), k.String())
	}
}

func TestKindOfWrapped(t *testing.T) {
	base := Validation("quantity", "must be positive")
	wrapped := fmt.Errorf("add node: %w", base)

	assert.Equal(t, ValidationError, KindOf(wrapped))
	assert.True(t, Is(wrapped, ValidationError))
	assert.False(t, Is(nil, ValidationError))
	assert.Equal(t, Internal, KindOf(errors.New("boom")))

	var e *Error
	assert.True(t, errors.As(wrapped, &e))
	assert.Equal(t, "quantity", e.Field)
}

func TestFromStore(t *testing.T) {
	assert.Nil(t, FromStore(nil))
	assert.True(t, Is(FromStore(gorm.ErrRecordNotFound), NotFound))
	assert.True(t, Is(FromStore(fmt.Errorf("find: %w", gorm.ErrRecordNotFound)), NotFound))
	assert.True(t, Is(FromStore(gorm.ErrDuplicatedKey), UniqueConstraintViolation))

	dup := &pgconn.PgError{Code: "23505", ConstraintName: StructureUniqueIndex}
	assert.True(t, Is(FromStore(dup), DuplicateStructure))

	other := &pgconn.PgError{Code: "23505", ConstraintName: "uk_pdm_codes_code"}
	assert.True(t, Is(FromStore(fmt.Errorf("insert: %w", other)), UniqueConstraintViolation))

	fk := &pgconn.PgError{Code: "23503"}
	assert.True(t, Is(FromStore(fk), NotFound))

	plain := errors.New("connection refused")
	assert.Equal(t, plain, FromStore(plain))

	already := Transition("code", "draft", "obsolete")
	assert.Equal(t, error(already), FromStore(already))
}
