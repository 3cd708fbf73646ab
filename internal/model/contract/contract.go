package contract

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a plain chat turn. System is sent through each
// provider's native system slot.
type CompletionRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type CompletionResponse struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}
