package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/idris/kestrel/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Parameter defines a parameter for a tool.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
}

// Schema is the metadata advertised to the model for one tool.
type Schema struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Tier        Tier        `json:"tier"`
}

// Handler is the function signature for tool execution.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// Definition binds a schema to its handler.
type Definition struct {
	Schema
	Handler Handler `json:"-"`
}

// Result is the contract every execution resolves to. A failing tool
// surfaces as Success=false; nothing escapes past this shape.
type Result struct {
	Success bool           `json:"success"`
	Output  string         `json:"output,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Registry manages tool definitions and executes them by name.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool definition after validating it and compiling its
// parameter schema.
func (r *Registry) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}
	if def.Tier == "" {
		def.Tier = TierReadOnly
	}
	if !IsValidTier(string(def.Tier)) {
		return fmt.Errorf("invalid tier %s for tool %s", def.Tier, def.Name)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}
	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema

	log.Info().Str("tool", def.Name).Str("tier", string(def.Tier)).Msg("Tool registered")
	return nil
}

// Unregister removes a tool.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Schemas returns the advertised metadata for all registered tools.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Schema, 0, len(r.tools))
	for _, def := range r.tools {
		out = append(out, def.Schema)
	}
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ExecuteByName runs a tool under the given timeout. It never panics past
// its contract: handler errors, panics, invalid parameters, unknown names
// and timeouts all resolve to a Result with Success=false.
func (r *Registry) ExecuteByName(ctx context.Context, name string, params map[string]any, timeout time.Duration) Result {
	start := time.Now()

	r.mu.RLock()
	def := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if def == nil {
		return Result{Success: false, Error: fmt.Sprintf("tool not found: %s", name)}
	}
	if def.Tier == TierBlocked {
		return Result{Success: false, Error: fmt.Sprintf("tool is blocked: %s", name)}
	}

	if err := validateParams(schema, params); err != nil {
		log.Error().Str("tool", name).Err(err).Msg("Parameter validation failed")
		return Result{Success: false, Error: fmt.Sprintf("parameter validation failed: %v", err)}
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan any, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				errChan <- fmt.Errorf("tool panicked: %v", rec)
			}
		}()
		output, err := def.Handler(timeoutCtx, params)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- output
		}
	}()

	select {
	case output := <-resultChan:
		observability.RecordToolExecution(name, time.Since(start), true)
		res := Result{Success: true, Output: fmt.Sprintf("%v", output)}
		if data, ok := output.(map[string]any); ok {
			res.Data = data
		}
		return res

	case err := <-errChan:
		observability.RecordToolExecution(name, time.Since(start), false)
		log.Error().Str("tool", name).Err(err).Msg("Tool execution failed")
		return Result{Success: false, Error: err.Error()}

	case <-timeoutCtx.Done():
		observability.RecordToolExecution(name, time.Since(start), false)
		log.Error().Str("tool", name).Dur("timeout", timeout).Msg("Tool execution timeout")
		return Result{Success: false, Error: fmt.Sprintf("tool execution timeout after %v", timeout)}
	}
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}
	return nil
}

func compileSchema(def Definition) (*gojsonschema.Schema, error) {
	schemaMap := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           make(map[string]any),
	}

	properties := schemaMap["properties"].(map[string]any)
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema
		if param.Required {
			required = append(required, param.Name)
		}
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

func validateParams(schema *gojsonschema.Schema, params map[string]any) error {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if !result.Valid() {
		errs := []string{}
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}
