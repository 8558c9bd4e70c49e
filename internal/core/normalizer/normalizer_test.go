package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	cases := []struct {
		name      string
		utterance string
		want      Signals
	}{
		{
			name:      "greeting with full name and purpose",
			utterance: "Hi, this is Mike Ross calling about the contract.",
			want:      Signals{Name: "Mike Ross", Purpose: "the contract"},
		},
		{
			name:      "lower case name is title cased and filler trimmed",
			utterance: "hello this is mike calling",
			want:      Signals{Name: "Mike"},
		},
		{
			name:      "name from company introduction",
			utterance: "This is Jessica from Pearson",
			want:      Signals{Name: "Jessica"},
		},
		{
			name:      "name before here",
			utterance: "Rachel Zane here, I need to talk about the merger",
			want:      Signals{Name: "Rachel Zane", Purpose: "the merger"},
		},
		{
			name:      "pronoun is not a name",
			utterance: "I'm calling about my invoice",
			want:      Signals{Purpose: "my invoice"},
		},
		{
			name:      "following up",
			utterance: "Just following up on the proposal we sent.",
			want:      Signals{Purpose: "the proposal we sent"},
		},
		{
			name:      "question about",
			utterance: "I have a question about billing?",
			want:      Signals{Purpose: "billing"},
		},
		{
			name:      "nothing to find",
			utterance: "What's the weather like",
			want:      Signals{},
		},
		{
			name:      "blank",
			utterance: "   ",
			want:      Signals{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Extract(tc.utterance))
		})
	}
}

func TestPatchSetsOnlyFoundFields(t *testing.T) {
	patch := Signals{Purpose: "billing"}.Patch()
	assert.Equal(t, []string{"purpose"}, patch.Keys())
	assert.True(t, Signals{}.Empty())
}
