package models

// ChatTurn is one prior message in the conversation.
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// HistoryContext is what the analyzer carried over from earlier turns,
// letting a short follow-up inherit codes and product terms.
type HistoryContext struct {
	// Prefix is a short contextual sentence prepended to retrieval queries.
	Prefix   string   `json:"prefix,omitempty"`
	Codes    []string `json:"codes,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}
