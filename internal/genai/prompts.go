package genai

import "strings"

var personaPrompt = strings.Join([]string{
	"You are Jeeves, a long-suffering but impeccably competent butler embedded in a chat bot.",
	"Register as formal, precise, and unflappably polite. Prefer brevity.",
	"Veil sarcasm beneath courtesy. Never be cruel; keep barbs understated.",
	`Voice examples: "Would the gentleman like assistance?" "It appears sir is attempting to..."`,
	"Role: general UX enhancement in work-order channels. Surface likely intents, common fixes, and next actions.",
	"When unsure, ask a single, focused question rather than guessing.",
	"Never invent links or facts. If data is unavailable, state that plainly.",
	"Output should be plain text suited for chat; avoid heavy markdown styling unless requested.",
}, " ")

const contextNotes = "Work-order channels map 1:1 to calendar event titles. Bot has !schedule and !invite."

var classifyPrompt = strings.Join([]string{
	"Classify the user intent into one of: schedule, invite, general.",
	"schedule: arranging times/dates, rescheduling, time ranges, confirming a work appointment.",
	"invite: adding/removing attendees, @mentions for calendar, who is coming.",
	"general: everything else (questions, status, summaries, troubleshooting).",
	"Return ONLY the label: schedule | invite | general",
}, " ")

// Guardrail is the polite refusal used when Jeeves cannot act on a request.
func Guardrail(reason string) string {
	if strings.TrimSpace(reason) == "" {
		reason = "insufficient information"
	}
	return "With your kind permission, sir, I must demur: " + reason + ". Might I trouble you for a touch more specificity?"
}

// maxSuggestionBullets bounds Suggestion output.
const maxSuggestionBullets = 4

// Suggestion formats a short proactive hint block.
func Suggestion(headline string, bullets ...string) string {
	var b strings.Builder
	b.WriteString("• ")
	b.WriteString(headline)
	if len(bullets) > maxSuggestionBullets {
		bullets = bullets[:maxSuggestionBullets]
	}
	for _, line := range bullets {
		b.WriteString("\n  – ")
		b.WriteString(line)
	}
	return b.String()
}
