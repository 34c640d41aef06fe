package fixtures

import "github.com/BaSui01/dataflow/executors"

// SloganPrompt is the writing workflow sample prompt.
func SloganPrompt() []executors.ChatMessage {
	return executors.UserPrompt("Create a slogan for a new electric SUV that is affordable and fun to drive.")
}

// Conversation 返回 user/assistant 交替的对话
func Conversation(turns ...string) []executors.ChatMessage {
	out := make([]executors.ChatMessage, len(turns))
	for i, content := range turns {
		role := executors.RoleUser
		if i%2 == 1 {
			role = executors.RoleAssistant
		}
		out[i] = executors.ChatMessage{Role: role, Content: content}
	}
	return out
}

// AssistantResponse wraps content in a single-message response.
func AssistantResponse(content string) *executors.ChatResponse {
	return &executors.ChatResponse{Messages: []executors.ChatMessage{
		{Role: executors.RoleAssistant, Content: content},
	}}
}
