package call

import (
	"context"

	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/internal/core/executor"
	"github.com/ClareAI/astra-receptionist-service/internal/core/reply"
	"github.com/ClareAI/astra-receptionist-service/internal/core/tool"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/pkg/pubsub"
)

// Action is what the telephony side does after speaking
type Action string

const (
	// ActionListen gathers the caller's next utterance
	ActionListen Action = "listen"
	// ActionHangup ends the call
	ActionHangup Action = "hangup"
)

// Instruction tells the telephony transport what to do next on a call
type Instruction struct {
	Action Action `json:"action"`
	// Say is spoken first
	Say string `json:"say,omitempty"`
	// Prompt is spoken inside the gather while waiting for the caller
	Prompt string `json:"prompt,omitempty"`
	// FollowUp is spoken when the first gather hears nothing, before gathering again
	FollowUp string `json:"follow_up,omitempty"`
	// NoInput is spoken before hanging up when nothing was gathered
	NoInput string `json:"no_input,omitempty"`
}

// SpeakListen speaks text and waits for the caller
func SpeakListen(text string) Instruction {
	return Instruction{Action: ActionListen, Say: text}
}

// SpeakHangup speaks text and ends the call
func SpeakHangup(text string) Instruction {
	return Instruction{Action: ActionHangup, Say: text}
}

// Lines returns every line the instruction may speak, in order
func (i Instruction) Lines() []string {
	lines := make([]string, 0, 4)
	for _, l := range []string{i.Say, i.Prompt, i.FollowUp, i.NoInput} {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Decider chooses the actions for a turn
type Decider interface {
	Decide(ctx context.Context, in tool.DecisionInput) []domain.ToolRequest
}

// Executor runs the chosen actions
type Executor interface {
	Execute(ctx context.Context, callID string, callCtx domain.Context, reqs []domain.ToolRequest) executor.Result
}

// Responder produces the guarded reply for a turn
type Responder interface {
	Reply(ctx context.Context, in reply.Input) reply.Reply
}

// RecordSaver persists the history entry of a finished call. UpdateDuration
// corrects the duration of a saved call and returns ErrNotFound when no record
// exists yet.
type RecordSaver interface {
	Save(ctx context.Context, record *domain.CallRecord) error
	UpdateDuration(ctx context.Context, callSID string, seconds int) error
}

// Archiver stores the full transcript of a finished call and returns its location
type Archiver interface {
	ArchiveCall(ctx context.Context, record *domain.CallRecord) (string, error)
}

// OutcomePublisher announces finished calls to other services
type OutcomePublisher interface {
	PublishCallOutcome(ctx context.Context, event pubsub.CallOutcomeEvent) error
}

// CallHanger ends a call on the carrier side
type CallHanger interface {
	Hangup(callSID string) error
}

// BusinessSource returns who the receptionist currently answers for
type BusinessSource interface {
	BusinessInfo(ctx context.Context) config.BusinessInfo
}

// StaticBusiness is a BusinessSource with fixed values
type StaticBusiness config.BusinessInfo

func (b StaticBusiness) BusinessInfo(context.Context) config.BusinessInfo {
	return config.BusinessInfo(b)
}

// LiveCallView is the monitoring shape of a live call
type LiveCallView struct {
	CallID        string `json:"call_sid"`
	CallerAddress string `json:"caller_number"`
	Status        string `json:"status"`
	StartedAt     string `json:"started_at"`
	Turns         int    `json:"turns"`
	CallerName    string `json:"caller_name,omitempty"`
}
