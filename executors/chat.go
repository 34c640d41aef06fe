package executors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/dataflow/workflow"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single message of a conversation.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
}

// UserPrompt returns a conversation holding a single user message.
func UserPrompt(text string) []ChatMessage {
	return []ChatMessage{{Role: RoleUser, Content: text}}
}

// ChatRequest is sent to a ChatClient.
type ChatRequest struct {
	Agent        string        `json:"agent"`
	Instructions string        `json:"instructions"`
	Messages     []ChatMessage `json:"messages"`
}

// ChatResponse holds the messages produced by the model.
type ChatResponse struct {
	Messages []ChatMessage `json:"messages"`
}

// Text concatenates the assistant messages of the response.
func (r *ChatResponse) Text() string {
	if r == nil {
		return ""
	}
	var parts []string
	for _, m := range r.Messages {
		if m.Role == RoleAssistant && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// ChatClient is the boundary to an LLM provider.
type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ErrNilChatClient is returned when a chat executor is built without a client.
var ErrNilChatClient = errors.New("chat client is required")

// =============================================================================
// 🤖 ChatExecutor
// =============================================================================

// ChatMode decides what a ChatExecutor does with the model's reply.
type ChatMode int

const (
	// ChatForward appends the reply to the conversation and forwards it.
	ChatForward ChatMode = iota
	// ChatYield yields the reply text as the run output.
	ChatYield
)

// ChatOption configures a ChatExecutor.
type ChatOption func(*ChatExecutor)

// WithRateLimit bounds the executor to rps calls per second.
func WithRateLimit(rps float64, burst int) ChatOption {
	return func(e *ChatExecutor) {
		if rps <= 0 {
			e.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLimiter shares an existing limiter between executors.
func WithLimiter(l *rate.Limiter) ChatOption {
	return func(e *ChatExecutor) { e.limiter = l }
}

// WithChatLogger sets the executor logger.
func WithChatLogger(logger *zap.Logger) ChatOption {
	return func(e *ChatExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// ChatExecutor sends the incoming conversation to a ChatClient.
type ChatExecutor struct {
	*workflow.FuncExecutor[[]ChatMessage, []ChatMessage]

	name         string
	instructions string
	mode         ChatMode
	client       ChatClient
	limiter      *rate.Limiter
	logger       *zap.Logger
}

// NewChatExecutor creates a chat executor.
func NewChatExecutor(id, instructions string, mode ChatMode, client ChatClient, opts ...ChatOption) (*ChatExecutor, error) {
	if client == nil {
		return nil, ErrNilChatClient
	}
	e := &ChatExecutor{
		name:         id,
		instructions: instructions,
		mode:         mode,
		client:       client,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "chat_executor"), zap.String("executor_id", id))
	e.FuncExecutor = workflow.NewFuncExecutor[[]ChatMessage, []ChatMessage](id, e.handle)
	return e, nil
}

func (e *ChatExecutor) handle(ctx context.Context, messages []ChatMessage, _ *workflow.RunContext) (workflow.EmitResult, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return workflow.EmitResult{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := e.client.Complete(ctx, ChatRequest{
		Agent:        e.name,
		Instructions: e.instructions,
		Messages:     append([]ChatMessage(nil), messages...),
	})
	if err != nil {
		return workflow.EmitResult{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if resp == nil {
		resp = &ChatResponse{}
	}
	e.logger.Debug("chat completion done",
		zap.Int("input_messages", len(messages)),
		zap.Int("output_messages", len(resp.Messages)))

	if e.mode == ChatYield {
		return workflow.Yield(resp.Text()), nil
	}
	conversation := make([]ChatMessage, 0, len(messages)+len(resp.Messages))
	conversation = append(conversation, messages...)
	conversation = append(conversation, resp.Messages...)
	return workflow.Forward(conversation), nil
}

const (
	WriterID            = "writer"
	ReviewerID          = "reviewer"
	WritingWorkflowName = "writing_workflow"

	writerInstructions   = "You are an excellent content writer. You create new content and edit contents based on the feedback."
	reviewerInstructions = "You are an excellent content reviewer. Provide actionable feedback to the writer about the provided content. Provide the feedback in the most concise manner possible."
)

// NewWriter creates the writer: it extends the conversation with a draft.
func NewWriter(client ChatClient, opts ...ChatOption) (*ChatExecutor, error) {
	return NewChatExecutor(WriterID, writerInstructions, ChatForward, client, opts...)
}

// NewReviewer creates the reviewer: its feedback is the run output.
func NewReviewer(client ChatClient, opts ...ChatOption) (*ChatExecutor, error) {
	return NewChatExecutor(ReviewerID, reviewerInstructions, ChatYield, client, opts...)
}

// NewWritingWorkflow builds writer -> reviewer. Both executors share one
// limiter when rps is positive.
func NewWritingWorkflow(client ChatClient, rps float64, logger *zap.Logger, opts ...workflow.RunOption) (*workflow.Workflow, error) {
	chatOpts := []ChatOption{WithChatLogger(logger)}
	if rps > 0 {
		chatOpts = append(chatOpts, WithLimiter(rate.NewLimiter(rate.Limit(rps), 1)))
	}
	writer, err := NewWriter(client, chatOpts...)
	if err != nil {
		return nil, err
	}
	reviewer, err := NewReviewer(client, chatOpts...)
	if err != nil {
		return nil, err
	}
	return workflow.NewWorkflowBuilder(WritingWorkflowName).
		WithDescription("drafts content and reviews it").
		WithLogger(logger).
		AddExecutor(writer).
		AddExecutor(reviewer).
		AddEdge(WriterID, ReviewerID).
		SetStartExecutor(WriterID).
		WithOptions(opts...).
		Build()
}
