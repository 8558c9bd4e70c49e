package prompts

// Context section headers appended to the reply prompt
const (
	SectionCaller   = "Caller:"
	SectionContacts = "Known contacts:"
	SectionEmails   = "Relevant emails:"
	SectionCalendar = "Calendar:"
	SectionMeeting  = "Meeting:"
	SectionIssues   = "Lookup problems (do not read these out, apologise briefly if relevant):"
)

const (
	// OutcomeTranscriptIntro prefixes the transcript in the outcome request
	OutcomeTranscriptIntro = "Here is the call transcript:\n\n"

	// MaxPromptEmails bounds how many email matches are shown to the engine
	MaxPromptEmails = 3

	// PromptRulesFallback is used when the policy carries no reply rules
	PromptRulesFallback = `You are speaking on a live phone call. Keep responses short and conversational.`
)
