package llm

// tokenEstimateOverhead accounts for the system prompt scaffolding, tool
// schema, and response tokens that the character count does not cover.
const tokenEstimateOverhead = 200

// EstimateTokens approximates the token cost of a call from its prompt
// text: roughly one token per four characters, plus a fixed overhead.
// Used to reserve rate-limiter capacity before the real count is known.
func EstimateTokens(text string) int {
	return (len(text)+3)/4 + tokenEstimateOverhead
}
