package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ShayCichocki/autocoder/internal/llm"
	"github.com/ShayCichocki/autocoder/internal/workspace"
	"github.com/ShayCichocki/autocoder/pkg/models"
)

const (
	toolWriteFile = "write_file"
	toolFinish    = "finish"
)

var writeTools = []llm.Tool{
	{
		Name:        toolWriteFile,
		Description: "Write content into a file. It may be a new file or an existing file.",
		Properties: map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File path relative to the project root",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Complete content of the file",
			},
		},
		Required: []string{"path", "content"},
	},
	{
		Name:        toolFinish,
		Description: "Signal that you are done.",
	},
}

// writeSession applies write_file calls inside a project home.
type writeSession struct {
	home      string
	overwrite bool
	// check vets a slash-separated relative path; a non-empty reply
	// rejects the write.
	check   func(rel string) string
	ignore  *workspace.Ignore
	created models.FileSet
	written models.FileSet
}

func newWriteSession(home string, overwrite bool, check func(string) string) *writeSession {
	if abs, err := filepath.Abs(home); err == nil {
		home = abs
	}
	return &writeSession{
		home:      home,
		overwrite: overwrite,
		check:     check,
		ignore:    workspace.LoadIgnore(home),
		created:   models.NewFileSet(),
		written:   models.NewFileSet(),
	}
}

// writeLoop lets the model write files for up to MaxResponses turns or
// until it calls finish. It returns the files written.
func (b *Backend) writeLoop(ctx context.Context, label, system, prompt string, s *writeSession) (models.FileSet, error) {
	messages := []llm.Message{llm.UserMessage(prompt)}

	for turn := 1; turn <= b.cfg.MaxResponses; turn++ {
		if err := ctx.Err(); err != nil {
			return s.written, err
		}
		resp, err := b.client.Complete(ctx, llm.Request{
			System:      system,
			Messages:    messages,
			Tools:       writeTools,
			ToolChoice:  llm.ToolChoiceAny,
			MaxTokens:   b.cfg.MaxTokens,
			Temperature: b.cfg.Temperature,
		})
		if err != nil {
			log.Printf("[generate] %s: turn %d failed with %d files written: %v", label, turn, s.written.Len(), err)
			return s.written, err
		}
		messages = append(messages, resp.AssistantMessage())

		if len(resp.ToolCalls) == 0 {
			messages = append(messages, llm.UserMessage("Use the write_file tool to write files, then call finish."))
			continue
		}

		finished := false
		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			switch call.Name {
			case toolFinish:
				finished = true
				results = append(results, llm.ToolResult{CallID: call.ID, Content: "done"})
			case toolWriteFile:
				msg, ok := s.write(call.Input)
				results = append(results, llm.ToolResult{CallID: call.ID, Content: msg, IsError: !ok})
			default:
				log.Printf("[generate] %s: unknown tool call %q", label, call.Name)
				results = append(results, llm.ToolResult{
					CallID:  call.ID,
					Content: fmt.Sprintf("Unknown tool: %s", call.Name),
					IsError: true,
				})
			}
		}
		if finished {
			return s.written, nil
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, ToolResults: results})
	}

	log.Printf("[generate] %s: stopped after %d responses without finish", label, b.cfg.MaxResponses)
	return s.written, nil
}

// write applies one write_file call and returns the tool reply.
func (s *writeSession) write(input json.RawMessage) (string, bool) {
	var params struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return fmt.Sprintf("Invalid parameters: %v", err), false
	}

	target, err := workspace.Resolve(s.home, params.Path)
	if err != nil {
		return fmt.Sprintf("Invalid path: %v", err), false
	}
	rel := filepath.ToSlash(workspace.Rel(s.home, target))
	if s.ignore.Ignored(rel) {
		return fmt.Sprintf("Path %s is ignored and cannot be written.", rel), false
	}
	if s.check != nil {
		if reason := s.check(rel); reason != "" {
			return fmt.Sprintf("Cannot write %s: %s.", rel, reason), false
		}
	}

	info, statErr := os.Stat(target)
	exists := statErr == nil
	if exists && info.IsDir() {
		return fmt.Sprintf("%s is a directory.", rel), false
	}
	if exists && !s.overwrite && !s.created.Contains(target) {
		dir := filepath.Dir(target)
		return fmt.Sprintf("File %s already exists. Please select another file to write to. Files in %s are: %s",
			rel, filepath.ToSlash(workspace.Rel(s.home, dir)), listDir(dir)), false
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Sprintf("Failed to create directory: %v", err), false
	}
	if err := os.WriteFile(target, []byte(params.Content), 0644); err != nil {
		return fmt.Sprintf("Failed to write file: %v", err), false
	}
	if !exists {
		s.created.Add(target)
	}
	s.written.Add(target)
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(params.Content), rel), true
}

func listDir(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "(unreadable)"
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
