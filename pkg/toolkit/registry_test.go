package toolkit

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string, category Category) Definition {
	return Definition{
		Name:        name,
		Description: "echoes its message argument",
		Category:    category,
		Parameters: []Parameter{
			{Name: "message", Type: "string", Description: "text to echo", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return args["message"], nil
		},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(echoTool("echo", CategoryGeneral)))

	def := registry.Get("echo")
	require.NotNil(t, def)
	assert.Equal(t, "echo", def.Name)
	assert.Nil(t, registry.Get("missing"))
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(echoTool("echo", CategoryGeneral)))

	err := registry.Register(echoTool("echo", CategoryGeneral))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "echo")
}

func TestRegistryWriteClass(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(echoTool("read_thing", CategoryRead)))
	require.NoError(t, registry.Register(echoTool("write_thing", CategoryWrite)))
	require.NoError(t, registry.Register(echoTool("mutate_thing", CategoryWrite)))

	writeClass := registry.WriteClass()
	sort.Strings(writeClass)
	assert.Equal(t, []string{"mutate_thing", "write_thing"}, writeClass)
}

func TestRegistrySchemas(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(echoTool("echo", CategoryGeneral)))

	schemas, err := registry.Schemas([]string{"echo"})
	require.NoError(t, err)
	require.Len(t, schemas, 1)

	assert.Equal(t, "echo", schemas[0].Name)
	assert.Equal(t, "object", schemas[0].InputSchema["type"])

	required, ok := schemas[0].InputSchema["required"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"message"}, required)

	_, err = registry.Schemas([]string{"missing"})
	assert.Error(t, err)
}

func TestRegistryExecuteValidatesArguments(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(echoTool("echo", CategoryGeneral)))

	result := registry.Execute(context.Background(), "echo", map[string]interface{}{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "message")

	result = registry.Execute(context.Background(), "echo", map[string]interface{}{"message": "hello"})
	assert.True(t, result.Success)
	assert.Equal(t, "hello", result.Data)
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	registry := NewRegistry()

	result := registry.Execute(context.Background(), "missing", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "unknown tool")
}

func TestRegistryExecuteHandlerError(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(Definition{
		Name:        "broken",
		Description: "always fails",
		Category:    CategoryGeneral,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return nil, fmt.Errorf("backend unavailable")
		},
	}))

	result := registry.Execute(context.Background(), "broken", nil)
	assert.False(t, result.Success)
	assert.Equal(t, "backend unavailable", result.Message)
}

func TestRegistryExecuteRecoversPanic(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(Definition{
		Name:        "explodes",
		Description: "panics on call",
		Category:    CategoryGeneral,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			panic("boom")
		},
	}))

	result := registry.Execute(context.Background(), "explodes", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "boom")
}
