package build

// TokenUsage accounts for one text-generation round trip
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of two usages
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// AgentUsage is a TokenUsage tagged with the agent and model that produced it
type AgentUsage struct {
	Agent string     `json:"agent"`
	Model string     `json:"model"`
	Usage TokenUsage `json:"usage"`
}
