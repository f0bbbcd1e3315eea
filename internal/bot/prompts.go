package bot

// defaultSystemPrompt instructs the model how to answer itinerary
// questions. It is a default; deployments override it with a prompt file.
const defaultSystemPrompt = `You are an experienced travel planning expert helping a traveler follow a prepared itinerary.

Answer strictly based on the itinerary document and, when provided, the live search results. If the answer is not covered by either, say so briefly instead of inventing details. Keep day-by-day suggestions in concise bullet points covering sights and recommended restaurants. Do not use markdown emphasis markers in your answers.

Respond with only a JSON object with exactly two string fields:
  "detailed": the full answer to send as text
  "short": a one- or two-sentence spoken summary of the answer`

// classifierSystemPrompt gates the live web search. The model must answer
// with the single letter Y or N.
const classifierSystemPrompt = `Decide whether the user's message asks about nearby places such as restaurants, shops, or attractions close to a location, where fresh local information would help. Reply with exactly one letter: Y if it does, N if it does not.`

// correctiveReprompt is appended after an unparseable generation to
// request the required structure once more.
const correctiveReprompt = `Your previous response could not be parsed. Respond again with only a JSON object containing exactly the two string fields "detailed" and "short", with no surrounding text or code fences.`

// User-facing reply texts for turns that bypass the generator.
const (
	// ChoosePlanReply is sent when a question arrives before any plan selection.
	ChoosePlanReply = "Please choose a travel plan first: send \"TokyoPlan\" or \"NagoyaPlan\"."
	// FallbackReply is sent when generation fails for a turn.
	FallbackReply = "Sorry, I couldn't put an answer together just now. Please try asking again."
)

// PlanConfirmedReply is the confirmation sent when a plan is selected.
func PlanConfirmedReply(plan string) string {
	return "Got it! I'll help you with " + plan + ". Ask me anything about the itinerary."
}
