package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	ForensicPromptVariant = "forensic-v1"
	SummaryPromptVariant  = "summary-v1"
)

const ForensicPrompt = `You are assisting a forensic analyst reviewing an exported chat.
Analyse the material and report, using these headings:
PARTICIPANTS: every person, phone number or account and their role.
TIMELINE: dated events in chronological order.
LOCATIONS: every place, address or coordinate mentioned, with who mentioned it and when.
THREATS: threats, intimidation, violence or coercion, quoting the message.
SENSITIVE DATA: credentials, financial data, documents, identifiers.
NOTES: anything else relevant to an investigation.
Only report what the material supports. Write "none" under empty headings.`

const SummaryPrompt = `You are consolidating partial forensic analyses of one chat export.
Merge them into one report with the headings PARTICIPANTS, TIMELINE, LOCATIONS,
THREATS, SENSITIVE DATA and NOTES. Remove duplicates, keep chronological order,
and keep references to chunk labels where the partial analyses give them.`

const ConversationSummaryPrompt = `Summarise this single conversation for a forensic analyst.
State who talks to whom, the main topics, any threats, appointments or places,
and the time span. Do not mention other conversations.`

const HeaderDetectionPrompt = `Decide whether the following text starts a new chat in a forensic export.
Answer with JSON only: {"is_chat_header": true|false, "metadata": {"start_time": "", "identifier": "", "participants": []}}`

const LocationExtractionPrompt = `Extract every location from the forensic analysis below.
Output one location per line and nothing else, in this exact form:
category | confidence | text | lat,lon
category is one of: coordinates, address, place.
confidence is an integer from 0 to 100.
lat,lon is only present when the text itself contains coordinates.
If there are no locations output NONE.`

const LocationContextPrompt = `The analysis below contains vague place references such as "the usual place"
or "at his house". Using the preceding chat text as context, output your best guess
for each such reference, one per line, in this exact form:
inferred | confidence | text
confidence must be between 30 and 60. If nothing can be deduced output NONE.`

const QuickSearchPrompt = `Answer the analyst's question using only the forensic analyses provided.
Cite chunk labels (for example chunk_007) for every fact. If the analyses do not
contain the answer, say so and give your best estimate clearly marked as such.`

// PromptVariant identifies a custom prompt by content.
func PromptVariant(prompt string) string {
	if prompt == "" || prompt == ForensicPrompt {
		return ForensicPromptVariant
	}
	sum := sha256.Sum256([]byte(prompt))
	return "custom-" + hex.EncodeToString(sum[:4])
}

// LabelledSection formats one analysis for inclusion in a follow-up prompt.
func LabelledSection(label string, text string) string {
	return fmt.Sprintf("--- %s ---\n%s\n", label, strings.TrimSpace(text))
}
