package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	ollama "github.com/ollama/ollama/api"
)

// OllamaClient implements Client against a local Ollama server. Tool calls
// are emulated with JSON mode: the model is shown the tool schemas and
// answers with a JSON object naming the tool and its arguments.
type OllamaClient struct {
	client *ollama.Client
	model  string
}

// NewOllamaClient creates a client using the OLLAMA_HOST environment.
func NewOllamaClient(model string) (*OllamaClient, error) {
	client, err := ollama.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("could not create ollama client: %w", err)
	}
	if model == "" {
		return nil, fmt.Errorf("ollama model is not set")
	}
	return &OllamaClient{client: client, model: strings.TrimPrefix(model, "ollama:")}, nil
}

// emulatedCall is the JSON shape the model answers with in tool mode.
type emulatedCall struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// Complete implements Client.
func (c *OllamaClient) Complete(ctx context.Context, req Request) (*Response, error) {
	stream := false
	chat := &ollama.ChatRequest{
		Model:    c.model,
		Messages: ollamaMessages(req),
		Stream:   &stream,
		Options:  map[string]interface{}{},
	}
	if req.Temperature > 0 {
		chat.Options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		chat.Options["num_predict"] = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chat.Format = json.RawMessage(`"json"`)
	}

	var content strings.Builder
	var usage Usage
	var doneReason string
	err := c.client.Chat(ctx, chat, func(res ollama.ChatResponse) error {
		content.WriteString(res.Message.Content)
		if res.Done {
			usage = Usage{InputTokens: int64(res.PromptEvalCount), OutputTokens: int64(res.EvalCount)}
			doneReason = res.DoneReason
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}

	out := &Response{StopReason: doneReason, Usage: usage}
	if len(req.Tools) == 0 {
		out.Text = content.String()
		return out, nil
	}

	calls, err := parseEmulatedCalls(content.String(), req.Tools)
	if err != nil {
		return nil, err
	}
	out.ToolCalls = calls
	return out, nil
}

func parseEmulatedCalls(text string, tools []Tool) ([]ToolCall, error) {
	var single emulatedCall
	var many []emulatedCall
	if strings.HasPrefix(strings.TrimSpace(text), "[") {
		if err := ExtractJSON(text, &many); err != nil {
			return nil, err
		}
	} else {
		if err := ExtractJSON(text, &single); err != nil {
			return nil, err
		}
		many = []emulatedCall{single}
	}

	known := make(map[string]bool, len(tools))
	for _, t := range tools {
		known[t.Name] = true
	}
	calls := make([]ToolCall, 0, len(many))
	for i, c := range many {
		if !known[c.Tool] {
			return nil, fmt.Errorf("model called unknown tool %q", c.Tool)
		}
		args := c.Arguments
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		calls = append(calls, ToolCall{ID: fmt.Sprintf("call_%d", i), Name: c.Tool, Input: args})
	}
	return calls, nil
}

func ollamaMessages(req Request) []ollama.Message {
	var out []ollama.Message
	system := req.System
	if len(req.Tools) > 0 {
		system += "\n\n" + toolInstructions(req.Tools, req.ToolChoice)
	}
	if strings.TrimSpace(system) != "" {
		out = append(out, ollama.Message{Role: "system", Content: strings.TrimSpace(system)})
	}
	for _, m := range req.Messages {
		var b strings.Builder
		b.WriteString(m.Text)
		for _, call := range m.ToolCalls {
			fmt.Fprintf(&b, "\n{\"tool\": %q, \"arguments\": %s}", call.Name, string(call.Input))
		}
		for _, r := range m.ToolResults {
			status := "ok"
			if r.IsError {
				status = "error"
			}
			fmt.Fprintf(&b, "\nTool result (%s): %s", status, r.Content)
		}
		out = append(out, ollama.Message{Role: string(m.Role), Content: strings.TrimSpace(b.String())})
	}
	return out
}

func toolInstructions(tools []Tool, choice string) string {
	var b strings.Builder
	b.WriteString("Respond ONLY with a JSON object of the form {\"tool\": \"<name>\", \"arguments\": {...}} ")
	b.WriteString("or a JSON array of such objects. Available tools:\n")
	for _, t := range tools {
		schema, _ := json.Marshal(objectSchema(t))
		fmt.Fprintf(&b, "- %s: %s\n  arguments schema: %s\n", t.Name, t.Description, schema)
	}
	if choice != "" && choice != ToolChoiceAny {
		fmt.Fprintf(&b, "You must call the %q tool.\n", choice)
	}
	return b.String()
}

// Verify OllamaClient implements Client at compile time.
var _ Client = (*OllamaClient)(nil)
