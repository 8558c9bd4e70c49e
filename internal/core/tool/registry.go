package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ClareAI/astra-receptionist-service/internal/core/engine"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/invopop/jsonschema"
	jsonschemav5 "github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// Argument shapes of the built-in actions. Schemas handed to the engine and
// used for validation are generated from these.

type SearchContactsArgs struct {
	Name string `json:"name" jsonschema:"required,minLength=1,description=Name of the person to look up"`
}

type SearchEmailsArgs struct {
	Query string `json:"query" jsonschema:"required,minLength=1,description=What to search for in past emails"`
}

type CheckCalendarArgs struct {
	Date string `json:"date" jsonschema:"required,minLength=1,description=Day to check such as tomorrow or 2026-01-15"`
}

type ScheduleMeetingArgs struct {
	What string `json:"what,omitempty" jsonschema:"description=Topic of the meeting"`
	Who  string `json:"who,omitempty" jsonschema:"description=Who the meeting is with"`
	When string `json:"when" jsonschema:"required,minLength=1,description=Requested time such as tomorrow at 2pm"`
}

type EndCallArgs struct {
	Message string `json:"message,omitempty" jsonschema:"description=Closing line to speak before hanging up"`
}

// Definition describes one action the engine may request
type Definition struct {
	Kind        domain.ToolKind
	Description string
	Schema      json.RawMessage

	compiled *jsonschemav5.Schema
}

// Spec converts the definition to what the engine sees
func (d *Definition) Spec() engine.ToolSpec {
	return engine.ToolSpec{Name: string(d.Kind), Description: d.Description, Parameters: d.Schema}
}

// Validate checks an argument bag against the definition's schema
func (d *Definition) Validate(args map[string]any) error {
	if d.compiled == nil {
		return nil
	}
	// round trip so the validator sees plain JSON values
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode arguments: %w", err)
	}
	if err := d.compiled.Validate(doc); err != nil {
		return fmt.Errorf("invalid %s arguments: %w", d.Kind, err)
	}
	return nil
}

// Registry is the allow-list of actions. Kinds not registered are never
// dispatched.
type Registry struct {
	mu          sync.RWMutex
	definitions map[domain.ToolKind]*Definition
	order       []domain.ToolKind
}

// NewRegistry creates a registry holding the built-in actions
func NewRegistry() *Registry {
	r := &Registry{definitions: make(map[domain.ToolKind]*Definition)}
	r.registerBuiltInTools()
	return r
}

func (r *Registry) registerBuiltInTools() {
	builtins := []struct {
		kind        domain.ToolKind
		description string
		args        any
	}{
		{domain.ToolSearchContacts, "Search for contacts by name to find information about the caller", &SearchContactsArgs{}},
		{domain.ToolSearchEmails, "Search emails for relevant context about the caller's topic", &SearchEmailsArgs{}},
		{domain.ToolCheckCalendar, "Check which times are already booked on a given day", &CheckCalendarArgs{}},
		{domain.ToolScheduleMeeting, "Book a meeting at a specific time the caller asked for", &ScheduleMeetingArgs{}},
		{domain.ToolEndCall, "End the call when the caller is finished", &EndCallArgs{}},
	}
	for _, b := range builtins {
		def, err := NewDefinition(b.kind, b.description, b.args)
		if err != nil {
			panic(fmt.Sprintf("built-in tool %s: %v", b.kind, err))
		}
		r.Register(def)
	}
}

// NewDefinition builds a definition whose schema is reflected from args
func NewDefinition(kind domain.ToolKind, description string, args any) (*Definition, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
		Anonymous:                  true,
		AllowAdditionalProperties:  true,
	}
	schema := reflector.Reflect(args)
	schema.Version = ""
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to render schema: %w", err)
	}

	url := string(kind) + ".schema.json"
	compiler := jsonschemav5.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Definition{Kind: kind, Description: description, Schema: raw, compiled: compiled}, nil
}

// Register adds or replaces a definition
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[def.Kind]; !exists {
		r.order = append(r.order, def.Kind)
	}
	r.definitions[def.Kind] = def
	logger.Base().Debug("Registered tool", zap.String("name", string(def.Kind)))
}

// Get returns the definition for kind
func (r *Registry) Get(kind domain.ToolKind) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[kind]
	return def, ok
}

// Allowed reports whether kind may be dispatched
func (r *Registry) Allowed(kind domain.ToolKind) bool {
	_, ok := r.Get(kind)
	return ok
}

// Definitions returns the registered definitions in registration order
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.order))
	for _, kind := range r.order {
		out = append(out, r.definitions[kind])
	}
	return out
}

// Specs returns the engine-facing specs of every registered action
func (r *Registry) Specs() []engine.ToolSpec {
	defs := r.Definitions()
	specs := make([]engine.ToolSpec, len(defs))
	for i, def := range defs {
		specs[i] = def.Spec()
	}
	return specs
}
