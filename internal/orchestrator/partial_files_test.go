package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/autocoder/internal/generate"
	"github.com/ShayCichocki/autocoder/internal/llm"
	"github.com/ShayCichocki/autocoder/internal/suite"
)

var errBackendExhausted = errors.New("backend exhausted")

// replayClient returns the responses in order. Once they run out it calls
// onExhausted, if set, and fails with the context error or
// errBackendExhausted.
type replayClient struct {
	mu          sync.Mutex
	responses   []*llm.Response
	onExhausted func()
}

func (c *replayClient) Complete(ctx context.Context, _ llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.responses) == 0 {
		if c.onExhausted != nil {
			c.onExhausted()
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errBackendExhausted
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func toolCall(id, name string, input any) llm.ToolCall {
	raw, _ := json.Marshal(input)
	return llm.ToolCall{ID: id, Name: name, Input: raw}
}

func writeFile(id, path string) llm.ToolCall {
	return toolCall(id, "write_file", map[string]string{"path": path, "content": "x = 1\n"})
}

func newGenerateOrchestrator(t *testing.T, client llm.Client) *Orchestrator {
	t.Helper()
	backend, err := generate.New(client, generate.Config{Profile: generate.Profile{
		Language:   "Python",
		Kind:       suite.KindPytest,
		TestsDir:   "tests",
		TestSuffix: ".py",
		NewRunner:  func(string) suite.Runner { return passing() },
	}})
	require.NoError(t, err)
	return newOrchestrator(t, backend)
}

func atomicDesign() []*llm.Response {
	return []*llm.Response{
		{Text: "app.py holding the program"},
		{ToolCalls: []llm.ToolCall{toolCall("c1", "set_code_complexity", map[string]bool{"code_is_complex": false})}},
	}
}

func TestBuild_ReportsFilesWrittenBeforeCollaboratorFailure(t *testing.T) {
	tests := []struct {
		name      string
		responses []*llm.Response
		cancel    bool
		stage     Stage
		wantErr   error
		wantFiles []string
	}{
		{
			name: "code fails after a write",
			responses: []*llm.Response{
				{ToolCalls: []llm.ToolCall{writeFile("w1", "app.py")}},
			},
			stage:     StageCode,
			wantErr:   errBackendExhausted,
			wantFiles: []string{"app.py"},
		},
		{
			name: "code cancelled after a write",
			responses: []*llm.Response{
				{ToolCalls: []llm.ToolCall{writeFile("w1", "app.py")}},
			},
			cancel:    true,
			stage:     StageCode,
			wantErr:   context.Canceled,
			wantFiles: []string{"app.py"},
		},
		{
			name: "test generation fails after a write",
			responses: []*llm.Response{
				{ToolCalls: []llm.ToolCall{writeFile("w1", "app.py"), toolCall("f1", "finish", map[string]string{})}},
				{ToolCalls: []llm.ToolCall{writeFile("w2", "tests/test_app.py")}},
			},
			stage:     StageGenerateTests,
			wantErr:   errBackendExhausted,
			wantFiles: []string{"app.py", filepath.Join("tests", "test_app.py")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			client := &replayClient{responses: append(atomicDesign(), tt.responses...)}
			if tt.cancel {
				client.onExhausted = cancel
			}
			o := newGenerateOrchestrator(t, client)

			_, err := o.Build(ctx, "write a program", home)
			require.ErrorIs(t, err, tt.wantErr)

			var be *BuildError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, tt.stage, be.Stage)

			files := PartialFiles(err)
			for _, f := range tt.wantFiles {
				path := filepath.Join(home, f)
				assert.FileExists(t, path)
				assert.True(t, files.Contains(path), "partial files missing %s", f)
			}
		})
	}
}

func TestBuild_FailureMessageNamesStageOnce(t *testing.T) {
	client := &replayClient{responses: append(atomicDesign(),
		&llm.Response{ToolCalls: []llm.ToolCall{writeFile("w1", "app.py")}},
	)}
	o := newGenerateOrchestrator(t, client)

	_, err := o.Build(context.Background(), "write a program", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, "build failed at code: backend exhausted", err.Error())
}
