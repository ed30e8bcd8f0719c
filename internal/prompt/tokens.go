package prompt

// EstimateTokens approximates a token count as one token per four bytes,
// rounded up. Retrieval uses the same estimate so totals stay comparable.
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	return (len(content) + 3) / 4
}
