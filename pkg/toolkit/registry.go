// Package toolkit holds the tool registry and the core filesystem
// tools an agent run can invoke.
package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/nanoagent/nanoagent/pkg/provider"
)

// Category classifies a tool by its side effects.
type Category string

const (
	CategoryRead    Category = "read"
	CategoryWrite   Category = "write"
	CategoryGeneral Category = "general"
)

// Parameter defines one tool argument.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Handler executes a tool with validated arguments.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Definition describes one registered tool.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Category    Category    `json:"category"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// Result is the uniform outcome of a tool invocation. The orchestrator
// forwards Data opaquely into the conversation.
type Result struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Registry stores tool definitions and validates call arguments
// against generated JSON schemas before dispatch.
type Registry struct {
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool. Registering a duplicate name is an error.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s has no handler", def.Name)
	}
	if def.Category == "" {
		def.Category = CategoryGeneral
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s is already registered", def.Name)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema for tool %s: %w", def.Name, err)
	}

	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema

	log.Debug().Str("tool", def.Name).Str("category", string(def.Category)).Msg("Tool registered")
	return nil
}

// Get returns a tool definition, or nil if unknown.
func (r *Registry) Get(name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// WriteClass returns the names of registered write-class tools.
func (r *Registry) WriteClass() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, def := range r.tools {
		if def.Category == CategoryWrite {
			names = append(names, name)
		}
	}
	return names
}

// Schemas returns the provider-facing declarations for the named
// tools; with no names given, for every registered tool.
func (r *Registry) Schemas(names []string) ([]provider.ToolSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(names) == 0 {
		names = make([]string, 0, len(r.tools))
		for name := range r.tools {
			names = append(names, name)
		}
	}

	schemas := make([]provider.ToolSchema, 0, len(names))
	for _, name := range names {
		def, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("tool not found: %s", name)
		}
		schemas = append(schemas, provider.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: inputSchema(def),
		})
	}
	return schemas, nil
}

// Execute validates arguments and runs the named tool. Tool failures,
// including handler panics, are reported as failed Results rather than
// errors; the conversation carries them back to the provider.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (result Result) {
	r.mu.RLock()
	def := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if def == nil {
		return Result{Success: false, Message: fmt.Sprintf("unknown tool: %s", name)}
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("tool", name).Interface("panic", rec).Msg("Tool handler panicked")
			result = Result{Success: false, Message: fmt.Sprintf("tool %s panicked: %v", name, rec)}
		}
	}()

	if args == nil {
		args = map[string]interface{}{}
	}

	if schema != nil {
		docLoader := gojsonschema.NewGoLoader(args)
		validation, err := schema.Validate(docLoader)
		if err != nil {
			return Result{Success: false, Message: fmt.Sprintf("argument validation failed: %v", err)}
		}
		if !validation.Valid() {
			return Result{Success: false, Message: validationMessage(name, validation)}
		}
	}

	output, err := def.Handler(ctx, args)
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}

	return Result{Success: true, Message: "ok", Data: output}
}

func validationMessage(name string, validation *gojsonschema.Result) string {
	msg := fmt.Sprintf("invalid arguments for tool %s:", name)
	for _, desc := range validation.Errors() {
		msg += " " + desc.String() + ";"
	}
	return msg
}

// inputSchema builds the JSON-schema object declared to providers.
func inputSchema(def *Definition) map[string]interface{} {
	properties := map[string]interface{}{}
	required := []string{}

	for _, param := range def.Parameters {
		properties[param.Name] = map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func compileSchema(def Definition) (*gojsonschema.Schema, error) {
	raw, err := json.Marshal(inputSchema(&def))
	if err != nil {
		return nil, err
	}
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
}
