package security

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateContentType(t *testing.T) {
	assert.True(t, ValidateContentType("application/json"))
	assert.True(t, ValidateContentType("application/json; charset=utf-8"))
	assert.False(t, ValidateContentType("text/plain"))
	assert.False(t, ValidateContentType("multipart/form-data; boundary=x"))
	assert.False(t, ValidateContentType(""))
}

func TestSanitizeHeaders(t *testing.T) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer abc")
	headers.Set("Content-Type", "application/json")

	clean := SanitizeHeaders(headers)
	assert.Empty(t, clean.Get("Authorization"))
	assert.Equal(t, "application/json", clean.Get("Content-Type"))
	assert.Equal(t, "Bearer abc", headers.Get("Authorization"))
}
