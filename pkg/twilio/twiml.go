package twilio

import (
	"fmt"

	"github.com/twilio/twilio-go/twiml"
)

// GatherOptions configures a speech <Gather>
type GatherOptions struct {
	Action        string
	Timeout       string
	SpeechTimeout string
	Language      string
	SpeechModel   string
	Enhanced      bool
	// Prompt is spoken inside the gather while waiting for the caller
	Prompt string
	// PromptURL is played inside the gather instead of Prompt when set
	PromptURL string
}

// Response accumulates TwiML voice verbs in order
type Response struct {
	voice string
	verbs []twiml.Element
}

// NewResponse creates an empty response; voice is applied to every <Say>
func NewResponse(voice string) *Response {
	return &Response{voice: voice}
}

// Say appends a <Say> verb
func (r *Response) Say(text string) *Response {
	if text == "" {
		return r
	}
	r.verbs = append(r.verbs, r.say(text))
	return r
}

// Play appends a <Play> verb
func (r *Response) Play(url string) *Response {
	if url == "" {
		return r
	}
	r.verbs = append(r.verbs, &twiml.VoicePlay{Url: url})
	return r
}

// Gather appends a speech <Gather>
func (r *Response) Gather(opts GatherOptions) *Response {
	gather := &twiml.VoiceGather{
		Input:         "speech",
		Action:        opts.Action,
		Method:        "POST",
		Timeout:       opts.Timeout,
		SpeechTimeout: opts.SpeechTimeout,
		Language:      opts.Language,
		SpeechModel:   opts.SpeechModel,
	}
	if opts.Enhanced {
		gather.Enhanced = "true"
	}
	switch {
	case opts.PromptURL != "":
		gather.InnerElements = []twiml.Element{&twiml.VoicePlay{Url: opts.PromptURL}}
	case opts.Prompt != "":
		gather.InnerElements = []twiml.Element{r.say(opts.Prompt)}
	}
	r.verbs = append(r.verbs, gather)
	return r
}

// Hangup appends a <Hangup> verb
func (r *Response) Hangup() *Response {
	r.verbs = append(r.verbs, &twiml.VoiceHangup{})
	return r
}

// Len returns the number of verbs
func (r *Response) Len() int {
	return len(r.verbs)
}

// Render returns the TwiML document
func (r *Response) Render() (string, error) {
	doc, err := twiml.Voice(r.verbs)
	if err != nil {
		return "", fmt.Errorf("failed to render twiml: %w", err)
	}
	return doc, nil
}

func (r *Response) say(text string) *twiml.VoiceSay {
	return &twiml.VoiceSay{Message: text, Voice: r.voice}
}
