package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
)

func noopHandler(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("extract-menu", noopHandler, ""))

	h, ok := r.Handler("extract-menu")
	assert.True(t, ok)
	assert.NotNil(t, h)

	_, ok = r.Handler("add-item-tags")
	assert.False(t, ok)

	assert.Error(t, r.Register("extract-menu", noopHandler, ""), "duplicate registration")
	assert.Error(t, r.Register("", noopHandler, ""))
	assert.Error(t, r.Register("x", nil, ""))
}

func TestRegistryTypesStableOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("extract-menu", noopHandler, ""))
	require.NoError(t, r.Register("add-item-tags", noopHandler, ""))

	assert.Equal(t, []string{"add-item-tags", "extract-menu"}, r.Types())
}

func TestRegistryValidatePayload(t *testing.T) {
	r := NewRegistry()
	schema := `{
		"type": "object",
		"required": ["url"],
		"properties": {"url": {"type": "string", "minLength": 1}}
	}`
	require.NoError(t, r.Register("extract-menu", noopHandler, schema))
	require.NoError(t, r.Register("free-form", noopHandler, ""))

	assert.NoError(t, r.ValidatePayload("extract-menu", json.RawMessage(`{"url":"https://example.com"}`)))
	assert.Error(t, r.ValidatePayload("extract-menu", json.RawMessage(`{}`)), "missing required field")
	assert.Error(t, r.ValidatePayload("extract-menu", json.RawMessage(`{"url":`)), "broken JSON")
	assert.Error(t, r.ValidatePayload("unregistered", json.RawMessage(`{}`)))
	assert.NoError(t, r.ValidatePayload("free-form", json.RawMessage(`{"anything":1}`)))
	assert.NoError(t, r.ValidatePayload("free-form", nil), "empty payload defaults to object")
}

func TestRegistryRejectsBadSchema(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register("x", noopHandler, `{"type": 42}`))
}
