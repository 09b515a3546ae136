package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
)

// Handler executes one job attempt. It receives the stored payload and
// returns a structured result, or an error the policy package can
// classify. The queue treats it as an opaque, potentially slow, potentially
// failing black box.
type Handler func(ctx context.Context, job *model.Job) (json.RawMessage, error)

// Registry maps job types to handlers. A handler may register a JSON
// Schema for its payload; enqueue requests are validated against it so bad
// input fails fast instead of burning worker attempts.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	schemas  map[string]*jsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// Register adds a handler for a job type. schema may be empty.
func (r *Registry) Register(jobType string, h Handler, schema string) error {
	if jobType == "" {
		return fmt.Errorf("job type is required")
	}
	if h == nil {
		return fmt.Errorf("handler for %q is nil", jobType)
	}

	var compiled *jsonschema.Schema
	if schema != "" {
		c := jsonschema.NewCompiler()
		url := jobType + ".schema.json"
		if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
			return fmt.Errorf("add schema for %q: %w", jobType, err)
		}
		var err error
		compiled, err = c.Compile(url)
		if err != nil {
			return fmt.Errorf("compile schema for %q: %w", jobType, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[jobType]; dup {
		return fmt.Errorf("handler for %q already registered", jobType)
	}
	r.handlers[jobType] = h
	if compiled != nil {
		r.schemas[jobType] = compiled
	}
	return nil
}

// MustRegister is Register that panics; for static wiring in main.
func (r *Registry) MustRegister(jobType string, h Handler, schema string) {
	if err := r.Register(jobType, h, schema); err != nil {
		panic(err)
	}
}

// Handler returns the handler for a job type.
func (r *Registry) Handler(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns the registered job types in stable order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ValidatePayload checks that the job type is registered and the payload
// conforms to its schema, if any.
func (r *Registry) ValidatePayload(jobType string, payload json.RawMessage) error {
	r.mu.RLock()
	_, known := r.handlers[jobType]
	sch := r.schemas[jobType]
	r.mu.RUnlock()

	if !known {
		return fmt.Errorf("unknown job type %q", jobType)
	}
	if sch == nil {
		return nil
	}

	var v any
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("payload does not match schema for %q: %w", jobType, err)
	}
	return nil
}
