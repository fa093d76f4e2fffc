// Package tools implements component B: the tool registry and executor.
// Registration is by name and must be idempotent; execution is always
// one call at a time per the sequential-within-a-turn rule in §4.B/§4.F.
package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// Registry holds tools by name with constant-time lookup.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]models.Tool
	schema sync.Map // schema text -> *jsonschema.Schema, shared across tools
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]models.Tool)}
}

// Register adds or replaces a tool by name. Registration is idempotent:
// re-registering the same name overwrites the prior entry rather than
// erroring, so the MCP collaborator can re-announce tools on reconnect.
func (r *Registry) Register(t models.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Lookup returns the tool registered under name, if any.
func (r *Registry) Lookup(name string) (models.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the currently registered tool names in no particular
// order; callers that need a stable order should sort the result.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// All returns a snapshot of the registered tools, used by the context
// assembler to describe available tools to the LLM.
func (r *Registry) All() []models.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// compileSchema compiles and caches a tool's JSON Schema by its raw text,
// mirroring the plugin SDK's schema cache.
func (r *Registry) compileSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	key := string(raw)
	if cached, ok := r.schema.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, fmt.Errorf("compile tool schema: %w", err)
	}
	r.schema.Store(key, compiled)
	return compiled, nil
}

// ValidateArguments checks args against tool's schema (required fields,
// types, and the rest of the schema) before the executor invokes the
// handler. It only validates: arguments are not coerced to the schema's
// types.
func (r *Registry) ValidateArguments(t models.Tool, args json.RawMessage) error {
	schema, err := r.compileSchema(t.Schema())
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("arguments invalid: %w", err)
	}
	return nil
}
