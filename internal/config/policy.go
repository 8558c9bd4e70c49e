package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed policy_default.yaml
var defaultPolicyYAML []byte

// Duration is a time.Duration written as a Go duration string in policy files.
type Duration struct {
	time.Duration
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// JSONSchema describes Duration as a duration string
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:    "string",
		Pattern: `^([0-9]+(\.[0-9]+)?(ns|us|ms|s|m|h))+$`,
	}
}

// Policy is the single versioned prompt and guard configuration. Orchestration
// code reads wording and thresholds from here only.
type Policy struct {
	Version  string        `yaml:"version" jsonschema:"required,minLength=1"`
	Persona  PersonaPolicy `yaml:"persona,omitempty"`
	Prompts  PromptPolicy  `yaml:"prompts,omitempty"`
	Lines    LinePolicy    `yaml:"lines,omitempty"`
	Guards   GuardPolicy   `yaml:"guards,omitempty"`
	Timeouts TimeoutPolicy `yaml:"timeouts,omitempty"`
	Meeting  MeetingPolicy `yaml:"meeting,omitempty"`
	Engine   EnginePolicy  `yaml:"engine,omitempty"`
}

type PersonaPolicy struct {
	AgentName string `yaml:"agent_name,omitempty"`
	// Voice is the <Say> voice used when synthesized audio is off
	Voice string `yaml:"voice,omitempty"`
}

// PromptPolicy holds text/template prompt templates rendered with the agent
// name and BusinessInfo fields.
type PromptPolicy struct {
	System       string `yaml:"system,omitempty"`
	Business     string `yaml:"business,omitempty"`
	ToolGuidance string `yaml:"tool_guidance,omitempty"`
	Reply        string `yaml:"reply,omitempty"`
	Outcome      string `yaml:"outcome,omitempty"`
}

type LinePolicy struct {
	Greeting          string `yaml:"greeting,omitempty"`
	GatherPrompt      string `yaml:"gather_prompt,omitempty"`
	NoInput           string `yaml:"no_input,omitempty"`
	EmptySpeech       string `yaml:"empty_speech,omitempty"`
	MissingCall       string `yaml:"missing_call,omitempty"`
	Fallback          string `yaml:"fallback,omitempty"`
	Farewell          string `yaml:"farewell,omitempty"`
	EndCall           string `yaml:"end_call,omitempty"`
	LoopTermination   string `yaml:"loop_termination,omitempty"`
	Acknowledge       string `yaml:"acknowledge,omitempty"`
	CallerAcknowledge string `yaml:"caller_acknowledge,omitempty"`
	MeetingConfirmed  string `yaml:"meeting_confirmed,omitempty"`
	MeetingFailed     string `yaml:"meeting_failed,omitempty"`
	FollowUp          string `yaml:"follow_up,omitempty"`
}

type GuardPolicy struct {
	FarewellPhrases   []string `yaml:"farewell_phrases,omitempty"`
	FarewellMaxLength int      `yaml:"farewell_max_length,omitempty" jsonschema:"minimum=1"`
	GreetingPhrases   []string `yaml:"greeting_phrases,omitempty"`
	NarrationVerbs    []string `yaml:"narration_verbs,omitempty"`
	NarrationMarkers  []string `yaml:"narration_markers,omitempty"`
	HistoryWindow     int      `yaml:"history_window,omitempty" jsonschema:"minimum=1"`
	RepeatWindow      int      `yaml:"repeat_window,omitempty" jsonschema:"minimum=1"`
	MinReplyLength    int      `yaml:"min_reply_length,omitempty" jsonschema:"minimum=1"`
}

type TimeoutPolicy struct {
	Decision Duration `yaml:"decision,omitempty"`
	Reply    Duration `yaml:"reply,omitempty"`
	Outcome  Duration `yaml:"outcome,omitempty"`
	Tool     Duration `yaml:"tool,omitempty"`
	Speech   Duration `yaml:"speech,omitempty"`
}

type MeetingPolicy struct {
	Duration    Duration `yaml:"duration,omitempty"`
	DefaultHour int      `yaml:"default_hour,omitempty" jsonschema:"minimum=0,maximum=23"`
	DefaultWhat string   `yaml:"default_what,omitempty"`
}

type EnginePolicy struct {
	DecideMaxTokens  int     `yaml:"decide_max_tokens,omitempty" jsonschema:"minimum=1"`
	ReplyMaxTokens   int     `yaml:"reply_max_tokens,omitempty" jsonschema:"minimum=1"`
	OutcomeMaxTokens int     `yaml:"outcome_max_tokens,omitempty" jsonschema:"minimum=1"`
	Temperature      float32 `yaml:"temperature,omitempty" jsonschema:"minimum=0,maximum=2"`
}

// DefaultPolicy returns the built-in policy
func DefaultPolicy() *Policy {
	p, err := parsePolicy(defaultPolicyYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("built-in policy is invalid: %v", err))
	}
	return p
}

// LoadPolicy reads a policy file and overlays it on the built-in policy.
// An empty path returns the built-in policy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy validates a policy document and overlays it on the built-in policy
func ParsePolicy(data []byte) (*Policy, error) {
	return parsePolicy(data, DefaultPolicy())
}

func parsePolicy(data []byte, base *Policy) (*Policy, error) {
	if err := ValidatePolicyDocument(data); err != nil {
		return nil, err
	}

	policy := &Policy{}
	if base != nil {
		copied := *base
		policy = &copied
	}
	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}
	if err := policy.check(); err != nil {
		return nil, err
	}
	return policy, nil
}

func (p *Policy) check() error {
	if strings.TrimSpace(p.Lines.Greeting) == "" {
		return fmt.Errorf("policy %s: lines.greeting is required", p.Version)
	}
	if strings.TrimSpace(p.Prompts.System) == "" {
		return fmt.Errorf("policy %s: prompts.system is required", p.Version)
	}
	if p.Guards.FarewellMaxLength <= 0 || p.Guards.HistoryWindow <= 0 || p.Guards.RepeatWindow <= 0 {
		return fmt.Errorf("policy %s: guard thresholds must be positive", p.Version)
	}
	return nil
}

// BusinessInfo identifies who the receptionist answers for
type BusinessInfo struct {
	CEOName            string
	CompanyName        string
	CompanyDescription string
}
