package validator

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Name  string `json:"name" validate:"required"`
	Count int    `json:"count" validate:"gte=1,lte=100"`
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, Validate(&testPayload{Name: "products", Count: 10}))
}

func TestValidate_MissingRequired(t *testing.T) {
	err := Validate(&testPayload{Count: 10})
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields(), "Name")
	assert.Equal(t, "is required", vErr.Fields()["Name"])
}

func TestValidate_RangeViolation(t *testing.T) {
	err := Validate(&testPayload{Name: "products", Count: 500})
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Error(), "Count")
}

func TestDecodeAndValidate(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"products","count":5}`))

	var dst testPayload
	require.NoError(t, DecodeAndValidate(req, &dst))
	assert.Equal(t, "products", dst.Name)
}

func TestDecodeAndValidate_BadJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{not json`))

	var dst testPayload
	err := DecodeAndValidate(req, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}
