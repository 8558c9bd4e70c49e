package twilio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseRendersGreetingAndGather(t *testing.T) {
	doc, err := NewResponse("").
		Say("Hello, this is Donna.").
		Gather(GatherOptions{Action: "/process-speech", Prompt: "Please go ahead."}).
		Say("I didn't hear anything. Goodbye.").
		Hangup().
		Render()
	require.NoError(t, err)

	assert.Contains(t, doc, "<Response>")
	assert.Contains(t, doc, "Hello, this is Donna.")
	assert.Contains(t, doc, `action="/process-speech"`)
	assert.Contains(t, doc, `input="speech"`)
	assert.Contains(t, doc, "<Hangup")
	assert.Less(t, strings.Index(doc, "<Gather"), strings.Index(doc, "<Hangup"))
}

func TestResponsePlaySkipsEmpty(t *testing.T) {
	r := NewResponse("").Play("").Say("")
	assert.Equal(t, 0, r.Len())

	doc, err := NewResponse("").Play("https://example.com/tts/abc").Render()
	require.NoError(t, err)
	assert.Contains(t, doc, "https://example.com/tts/abc")
}

func TestDisabledCallServiceAcceptsSignatures(t *testing.T) {
	svc := NewCallService("", "")
	assert.False(t, svc.IsEnabled())
	assert.True(t, svc.ValidateSignature("https://example.com/x", nil, ""))
	assert.Error(t, svc.Hangup("CA123"))
}
