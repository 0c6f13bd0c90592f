package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	e := NotFound("index", "catalog_products")
	assert.Contains(t, e.Error(), "NOT_FOUND")
	assert.Contains(t, e.Error(), "catalog_products")
}

func TestAppError_Unwrap(t *testing.T) {
	e := AlreadyExists("index", "name", "catalog_products")
	assert.True(t, errors.Is(e, ErrAlreadyExists))
}

func TestHTTPStatus_AppError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("index", "x")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(AlreadyExists("index", "name", "x")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(InvalidInput("bad")))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(Unavailable("store down")))
}

func TestHTTPStatus_Sentinels(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(fmt.Errorf("wrapped: %w", ErrNotFound)))
	assert.Equal(t, http.StatusConflict, HTTPStatus(fmt.Errorf("wrapped: %w", ErrConflict)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("unknown")))
}

func TestWrap(t *testing.T) {
	err := Wrap(ErrNotFound, "lookup mapping")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "lookup mapping")
}
