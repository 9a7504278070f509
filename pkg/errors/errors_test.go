package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataTable(t *testing.T) {
	cases := map[Code]Metadata{
		CodeValidation:        {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
		CodeUnauthorized:      {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
		CodeForbidden:         {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
		CodeNotFound:          {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
		CodeConflict:          {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
		CodeStateConflict:     {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true},
		CodeInsufficientStock: {HTTPStatus: http.StatusConflict, PublicMessage: "insufficient stock", DetailsAllowed: true},
		CodeIdempotency:       {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
		CodeRateLimit:         {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded"},
		CodeInternal:          {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
		CodeDependency:        {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable", Retryable: true, DetailsAllowed: true},
	}
	for code, want := range cases {
		assert.Equal(t, want, MetadataFor(code), code)
	}
	assert.Equal(t, cases[CodeInternal], MetadataFor("SOMETHING_UNKNOWN"))
}

func TestErrorFormattingAndUnwrap(t *testing.T) {
	plain := New(CodeValidation, "missing foo")
	assert.Equal(t, "VALIDATION_ERROR: missing foo", plain.Error())
	assert.Nil(t, plain.Details())
	assert.Same(t, plain, plain.WithDetails(map[string]any{"field": "foo"}))
	assert.Equal(t, map[string]any{"field": "foo"}, plain.Details())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	assert.Equal(t, "CONFLICT: ctx: boom", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
	assert.Nil(t, Wrap(CodeConflict, nil, "no cause").Unwrap())

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Empty(t, nilErr.Error())
	assert.Nil(t, nilErr.WithDetails("ignored"))
}

func TestAsFindsTypedErrorThroughWrapping(t *testing.T) {
	inner := New(CodeForbidden, "no entry")
	outer := fmt.Errorf("handler: %w", inner)

	got := As(outer)
	require.NotNil(t, got)
	assert.Equal(t, CodeForbidden, got.Code())
	assert.True(t, IsCode(outer, CodeForbidden))
	assert.False(t, IsCode(outer, CodeNotFound))
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(Wrap(CodeDependency, stdErrors.New("lock"), "retry me")))
	assert.False(t, IsTransient(New(CodeInsufficientStock, "short")))
	assert.False(t, IsTransient(stdErrors.New("plain")))
}

func TestStatusOfAndNewf(t *testing.T) {
	err := Newf(CodeInsufficientStock, "need %d more", 3)
	assert.Equal(t, "need 3 more", err.Message())
	assert.Equal(t, http.StatusConflict, StatusOf(err))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(stdErrors.New("raw")))
}
