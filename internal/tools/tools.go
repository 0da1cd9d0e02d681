// Package tools implements C11: a typed tool registry and executor invoked by
// the orchestrator's tools_debate step (spec.md §4.11). Tool failures are
// captured as a Result, never raised — the orchestrator decides whether a
// failed tool degrades the response or is ignored.
package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/tas-rag-core/models"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3
	baseBackoff       = 200 * time.Millisecond
)

// Tool is one registry entry: a name, a JSON Schema describing its
// arguments, an invoke function, and whether it is safe to retry.
type Tool struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Invoke      func(ctx context.Context, args json.RawMessage) (string, error)
	Idempotent  bool
}

// Result is what the executor hands back to the orchestrator for one
// invocation — failures live here, not in a returned error.
type Result struct {
	ToolName string
	Output   string
	Err      error
	Attempts int
}

// Registry maps tool_name -> Tool (spec.md §4.11).
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	if t.Schema == nil {
		t.Schema = &jsonschema.Schema{Type: "object"}
	}
	r.tools[t.Name] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}

// Executor runs registered tools under a per-tool timeout, with exponential
// backoff retries for idempotent tools (spec.md §4.11).
type Executor struct {
	registry   *Registry
	timeout    time.Duration
	maxRetries int
}

func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry, timeout: DefaultTimeout, maxRetries: DefaultMaxRetries}
}

func (e *Executor) WithTimeout(d time.Duration) *Executor {
	e.timeout = d
	return e
}

func (e *Executor) WithMaxRetries(n int) *Executor {
	e.maxRetries = n
	return e
}

// Invoke validates args against the tool's schema, then runs it under a
// timeout. Idempotent tools are retried on failure with exponential backoff,
// up to maxRetries attempts total.
func (e *Executor) Invoke(ctx context.Context, toolName string, args json.RawMessage) Result {
	t, ok := e.registry.Get(toolName)
	if !ok {
		return Result{ToolName: toolName, Err: models.NewValidationError("unknown tool: " + toolName)}
	}

	if err := validateArgs(t.Schema, args); err != nil {
		return Result{ToolName: toolName, Err: models.NewValidationError("tool args failed schema validation: " + err.Error())}
	}

	attempts := 1
	maxAttempts := 1
	if t.Idempotent {
		maxAttempts = e.maxRetries
	}

	var lastErr error
	var output string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		out, err := t.Invoke(callCtx, args)
		cancel()

		if err == nil {
			return Result{ToolName: toolName, Output: out, Attempts: attempts}
		}
		lastErr = err
		output = out

		if !t.Idempotent || attempt == maxAttempts {
			break
		}
		if ctx.Err() != nil {
			break
		}

		select {
		case <-time.After(baseBackoff * time.Duration(1<<uint(attempt-1))):
		case <-ctx.Done():
			lastErr = models.NewCanceledError("tool retry canceled: " + toolName)
			return Result{ToolName: toolName, Output: output, Err: lastErr, Attempts: attempts}
		}
	}

	return Result{ToolName: toolName, Output: output, Err: lastErr, Attempts: attempts}
}

// validateArgs checks args against the tool's JSON Schema.
func validateArgs(schema *jsonschema.Schema, args json.RawMessage) error {
	if schema == nil {
		return nil
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return err
	}
	var v any
	if len(args) == 0 {
		v = map[string]any{}
	} else if err := json.Unmarshal(args, &v); err != nil {
		return err
	}
	return resolved.Validate(v)
}
