// Package llm provides a provider-neutral text generation client with tool
// calling, plus Anthropic, OpenAI and Ollama implementations and wrappers
// for rate limiting, retries and metrics.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrRetriesExhausted is returned when a request kept failing after every
// allowed retry.
var ErrRetriesExhausted = errors.New("failed to generate text")

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolChoiceAny forces the model to call one of the offered tools.
const ToolChoiceAny = "any"

// Tool describes a function the model may call.
type Tool struct {
	Name        string
	Description string
	// Properties is the JSON schema "properties" object of the input.
	Properties map[string]interface{}
	Required   []string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult answers a ToolCall.
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// Message is one turn of a conversation. Assistant turns may carry tool
// calls; user turns may carry tool results.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// UserMessage creates a user turn holding text.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// Request is a single completion request.
type Request struct {
	System   string
	Messages []Message
	Tools    []Tool
	// ToolChoice is empty to let the model decide, ToolChoiceAny to force
	// some tool call, or a tool name to force that tool.
	ToolChoice  string
	MaxTokens   int
	Temperature float64
}

// Usage reports token counts for a response.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is the model's reply.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	Usage      Usage
}

// Client completes requests against a model.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

// Complete implements Client.
func (f ClientFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// AssistantMessage converts a response into the assistant turn that
// produced it, for continuing a conversation.
func (r *Response) AssistantMessage() Message {
	return Message{Role: RoleAssistant, Text: r.Text, ToolCalls: r.ToolCalls}
}

// ExtractJSON finds the outermost JSON object or array in text and decodes
// it into target.
func ExtractJSON(text string, target interface{}) error {
	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return fmt.Errorf("no valid JSON found in response: %s", truncate(text, 200))
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return fmt.Errorf("no valid JSON found in response: %s", truncate(text, 200))
	}

	jsonStr := text[start : end+1]
	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return fmt.Errorf("parse JSON: %w (response: %s)", err, truncate(jsonStr, 200))
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
