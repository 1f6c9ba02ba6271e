package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/autocoder/internal/coder"
	"github.com/ShayCichocki/autocoder/internal/decompose"
	"github.com/ShayCichocki/autocoder/internal/exec"
	"github.com/ShayCichocki/autocoder/internal/llm"
	"github.com/ShayCichocki/autocoder/internal/suite"
	"github.com/ShayCichocki/autocoder/pkg/models"
)

// scriptedClient replays responses in order and records every request.
type scriptedClient struct {
	mu        sync.Mutex
	responses []*llm.Response
	err       error
	requests  []llm.Request
}

func (c *scriptedClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.responses) == 0 {
		return &llm.Response{ToolCalls: []llm.ToolCall{call("finish", `{}`)}}, nil
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

// failAfterClient replays responses and then fails with err.
type failAfterClient struct {
	responses []*llm.Response
	err       error
}

func (c *failAfterClient) Complete(context.Context, llm.Request) (*llm.Response, error) {
	if len(c.responses) == 0 {
		return nil, c.err
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

var callSeq int

func call(name, input string) llm.ToolCall {
	callSeq++
	return llm.ToolCall{ID: fmt.Sprintf("call_%d", callSeq), Name: name, Input: json.RawMessage(input)}
}

func writeCall(path, content string) llm.ToolCall {
	in, _ := json.Marshal(map[string]string{"path": path, "content": content})
	return call("write_file", string(in))
}

func toolResponse(calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{ToolCalls: calls}
}

type nopRunner struct{}

func (nopRunner) Run(context.Context, []string) (suite.RunOutput, error) {
	return suite.RunOutput{}, nil
}

func testProfile() Profile {
	return Profile{
		Language:   "Python",
		Kind:       suite.KindPytest,
		TestsDir:   "tests",
		TestSuffix: ".py",
		NewRunner:  func(string) suite.Runner { return nopRunner{} },
	}
}

func newBackend(t *testing.T, client llm.Client) *Backend {
	t.Helper()
	b, err := New(client, Config{Profile: testProfile()})
	require.NoError(t, err)
	return b
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{Profile: testProfile()})
	assert.Error(t, err)

	_, err = New(&scriptedClient{}, Config{Profile: Profile{Kind: suite.KindPytest}})
	assert.Error(t, err)

	p := testProfile()
	p.Kind = suite.KindNone
	_, err = New(&scriptedClient{}, Config{Profile: p})
	assert.Error(t, err)

	b, err := New(&scriptedClient{}, Config{Profile: testProfile()})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxResponses, b.cfg.MaxResponses)
	assert.Equal(t, DefaultMaxTokens, b.cfg.MaxTokens)
}

func TestDesignSolution(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{{Text: "  calc.py with add(a, b)\n"}}}
	b := newBackend(t, client)

	design, err := b.DesignSolution(context.Background(), "an adder")
	require.NoError(t, err)
	assert.Equal(t, models.CodeDesign("calc.py with add(a, b)"), design)
	require.Len(t, client.requests, 1)
	assert.Contains(t, client.requests[0].System, "Python")
	assert.Equal(t, "an adder", client.requests[0].Messages[0].Text)

	empty := newBackend(t, &scriptedClient{responses: []*llm.Response{{Text: "  "}}})
	_, err = empty.DesignSolution(context.Background(), "an adder")
	assert.Error(t, err)
}

func TestDesignSolution_PropagatesClientError(t *testing.T) {
	b := newBackend(t, &scriptedClient{err: llm.ErrRetriesExhausted})
	_, err := b.DesignSolution(context.Background(), "x")
	assert.ErrorIs(t, err, llm.ErrRetriesExhausted)
}

func TestShouldGenerateDevPlan(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(call("set_code_complexity", `{"code_is_complex": true}`)),
		{Text: `I think {"code_is_complex": false}`},
		toolResponse(call("set_code_complexity", `{}`)),
		{Text: "no idea"},
	}}
	b := newBackend(t, client)
	ctx := context.Background()

	isComplex, err := b.ShouldGenerateDevPlan(ctx, "big design")
	require.NoError(t, err)
	assert.True(t, isComplex)
	assert.Equal(t, "set_code_complexity", client.requests[0].ToolChoice)

	isComplex, err = b.ShouldGenerateDevPlan(ctx, "small design")
	require.NoError(t, err)
	assert.False(t, isComplex)

	_, err = b.ShouldGenerateDevPlan(ctx, "design")
	assert.Error(t, err)

	_, err = b.ShouldGenerateDevPlan(ctx, "design")
	assert.Error(t, err)
}

func TestGenerateDevPlan(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		{Text: "Here you go:\n[\"write parser\", \"write evaluator\"]"},
		{Text: "[]"},
	}}
	b := newBackend(t, client)

	plan, err := b.GenerateDevPlan(context.Background(), "design")
	require.NoError(t, err)
	assert.Equal(t, models.DevPlan{"write parser", "write evaluator"}, plan)

	_, err = b.GenerateDevPlan(context.Background(), "design")
	assert.ErrorIs(t, err, decompose.ErrInvalidDevPlan)
}

func TestChoose(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(call("choose_subcoder", `{"subcoder": "go"}`)),
		toolResponse(call("choose_subcoder", `{"subcoder": "rust"}`)),
	}}
	b := newBackend(t, client)
	ctx := context.Background()

	name, err := coder.Choose(ctx, b, "write a CLI", []string{"python", "go"})
	require.NoError(t, err)
	assert.Equal(t, "go", name)

	tool := client.requests[0].Tools[0]
	assert.Equal(t, "choose_subcoder", tool.Name)
	assert.Equal(t, []string{"python", "go"}, tool.Properties["subcoder"].(map[string]interface{})["enum"])

	_, err = coder.Choose(ctx, b, "write a CLI", []string{"python", "go"})
	assert.ErrorIs(t, err, coder.ErrUnknownSubcoder)

	_, err = b.Choose(ctx, "step", nil)
	assert.ErrorIs(t, err, coder.ErrNoSubcoderAvailable)
	assert.Len(t, client.requests, 2)
}

func TestCode_WritesFilesAndFinishes(t *testing.T) {
	home := t.TempDir()
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(writeCall("calc.py", "def add(a, b):\n    return a + b\n")),
		toolResponse(writeCall("pkg/util.py", "X = 1\n"), call("finish", `{}`)),
	}}
	b := newBackend(t, client)

	files, err := b.Code(context.Background(), "calc design", home)
	require.NoError(t, err)
	assert.Equal(t, models.NewFileSet(filepath.Join(home, "calc.py"), filepath.Join(home, "pkg", "util.py")), files)

	data, err := os.ReadFile(filepath.Join(home, "calc.py"))
	require.NoError(t, err)
	assert.Equal(t, "def add(a, b):\n    return a + b\n", string(data))

	require.Len(t, client.requests, 2)
	second := client.requests[1]
	assert.Equal(t, llm.ToolChoiceAny, second.ToolChoice)
	require.Len(t, second.Messages, 3)
	last := second.Messages[2]
	require.Len(t, last.ToolResults, 1)
	assert.False(t, last.ToolResults[0].IsError)
	assert.Contains(t, last.ToolResults[0].Content, "calc.py")
}

func TestCode_DoesNotOverwriteExistingFiles(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, "calc.py"), []byte("original"), 0644))
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(writeCall("calc.py", "clobbered")),
		toolResponse(writeCall("calc2.py", "v1")),
		toolResponse(writeCall("calc2.py", "v2"), call("finish", `{}`)),
	}}
	b := newBackend(t, client)

	files, err := b.Code(context.Background(), "design", home)
	require.NoError(t, err)
	assert.Equal(t, models.NewFileSet(filepath.Join(home, "calc2.py")), files)

	data, err := os.ReadFile(filepath.Join(home, "calc.py"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	rejected := client.requests[1].Messages[2].ToolResults[0]
	assert.True(t, rejected.IsError)
	assert.Contains(t, rejected.Content, "already exists")
	assert.Contains(t, rejected.Content, "calc.py")

	data, err = os.ReadFile(filepath.Join(home, "calc2.py"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data), "files created in the same call may be rewritten")

	assert.Contains(t, client.requests[0].Messages[0].Text, "- calc.py")
}

func TestCode_RejectsEscapingAndIgnoredPaths(t *testing.T) {
	home := t.TempDir()
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(writeCall("../outside.py", "x"), writeCall(".autocoder/state.db", "x"), call("finish", `{}`)),
	}}
	b := newBackend(t, client)

	files, err := b.Code(context.Background(), "design", home)
	require.NoError(t, err)
	assert.Zero(t, files.Len())
	assert.NoFileExists(t, filepath.Join(filepath.Dir(home), "outside.py"))
	assert.NoFileExists(t, filepath.Join(home, ".autocoder", "state.db"))
}

func TestCode_StopsAfterMaxResponses(t *testing.T) {
	home := t.TempDir()
	var responses []*llm.Response
	for i := 0; i < 10; i++ {
		responses = append(responses, &llm.Response{Text: "thinking"})
	}
	client := &scriptedClient{responses: responses}
	b, err := New(client, Config{Profile: testProfile(), MaxResponses: 3})
	require.NoError(t, err)

	files, err := b.Code(context.Background(), "design", home)
	require.NoError(t, err)
	assert.Zero(t, files.Len())
	assert.Len(t, client.requests, 3)
}

func TestCode_ClientErrorIsReturned(t *testing.T) {
	b := newBackend(t, &scriptedClient{err: errors.New("boom")})
	_, err := b.Code(context.Background(), "design", t.TempDir())
	assert.ErrorContains(t, err, "boom")
}

func TestRefine_OverwritesAndSendsFeedback(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "calc.py")
	require.NoError(t, os.WriteFile(path, []byte("def add(a, b):\n    return a - b\n"), 0644))
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(writeCall("calc.py", "def add(a, b):\n    return a + b\n"), call("finish", `{}`)),
	}}
	b := newBackend(t, client)

	files, err := b.Refine(context.Background(), coder.RefineRequest{
		Spec:        "an adder",
		ProjectHome: home,
		Files:       models.NewFileSet(path),
		Feedback:    "assert 1 == 3",
	})
	require.NoError(t, err)
	assert.True(t, files.Contains(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "a + b")

	prompt := client.requests[0].Messages[0].Text
	assert.Contains(t, prompt, "## Specification\n\nan adder")
	assert.Contains(t, prompt, "### calc.py")
	assert.Contains(t, prompt, "return a - b")
	assert.Contains(t, prompt, "## Feedback\n\nassert 1 == 3")
}

func TestGenerateUnitTests(t *testing.T) {
	home := t.TempDir()
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(
			writeCall("test_calc.py", "misplaced"),
			writeCall("tests/test_calc.py", "def test_add():\n    assert True\n"),
			call("finish", `{}`),
		),
	}}
	b := newBackend(t, client)

	ts, err := b.GenerateUnitTests(context.Background(), coder.TestRequest{
		Spec:        "an adder",
		ProjectHome: home,
		TestResults: "1 failed",
	})
	require.NoError(t, err)
	require.False(t, suite.IsNoTests(ts))
	assert.Equal(t, suite.KindPytest, ts.Kind())
	assert.Equal(t, models.NewFileSet(filepath.Join(home, "tests", "test_calc.py")), ts.TestFiles())
	assert.NoFileExists(t, filepath.Join(home, "test_calc.py"))

	assert.Contains(t, client.requests[0].Messages[0].Text, "## Test Results\n\n1 failed")
	assert.Contains(t, client.requests[0].System, "unit tests")
}

func TestGenerateUnitTests_ErrorKeepsWrittenFiles(t *testing.T) {
	home := t.TempDir()
	client := &failAfterClient{responses: []*llm.Response{
		toolResponse(writeCall("tests/test_calc.py", "def test_add():\n    assert True\n")),
	}, err: errors.New("boom")}
	b := newBackend(t, client)

	ts, err := b.GenerateUnitTests(context.Background(), coder.TestRequest{ProjectHome: home})
	require.ErrorContains(t, err, "boom")
	require.NotNil(t, ts)
	assert.Equal(t, models.NewFileSet(filepath.Join(home, "tests", "test_calc.py")), ts.TestFiles())
}

func TestGenerateIntegrationTests_NothingWritten(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{toolResponse(call("finish", `{}`))}}
	b := newBackend(t, client)

	ts, err := b.GenerateIntegrationTests(context.Background(), coder.TestRequest{ProjectHome: t.TempDir()})
	require.NoError(t, err)
	assert.True(t, suite.IsNoTests(ts))
	assert.Contains(t, client.requests[0].System, "integration tests")
}

type countingScaffolder struct{ calls int }

func (c *countingScaffolder) Scaffold(context.Context, models.CodeDesign, string) (models.FileSet, error) {
	c.calls++
	return models.NewFileSet("pyproject.toml"), nil
}

func TestScaffold(t *testing.T) {
	b := newBackend(t, &scriptedClient{})
	files, err := b.Scaffold(context.Background(), "design", t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, files.Len())

	sc := &countingScaffolder{}
	b, err = New(&scriptedClient{}, Config{Profile: testProfile(), Scaffolder: sc})
	require.NoError(t, err)
	files, err = b.Scaffold(context.Background(), "design", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1, sc.calls)
	assert.True(t, files.Contains("pyproject.toml"))
}

func TestProfileCheckTestPath(t *testing.T) {
	p := testProfile()
	assert.Empty(t, p.checkTestPath("tests/test_a.py"))
	assert.Empty(t, p.checkTestPath("tests/unit/test_a.py"))
	assert.NotEmpty(t, p.checkTestPath("test_a.py"))
	assert.NotEmpty(t, p.checkTestPath("tests/data.json"))

	g := GoProfile(nil, 0)
	assert.Empty(t, g.checkTestPath("calc/calc_test.go"))
	assert.NotEmpty(t, g.checkTestPath("calc/calc.go"))
}

func TestProfileWithCommand(t *testing.T) {
	p := PythonProfile(exec.NewRunner(), "tests", time.Minute).WithCommand("uv", "run", "pytest")
	r, ok := p.NewRunner("/tmp/home").(*suite.CommandTestRunner)
	require.True(t, ok)
	assert.Equal(t, []string{"uv", "run", "pytest"}, r.Argv)
	assert.Equal(t, time.Minute, r.Timeout)

	unchanged := GoProfile(exec.NewRunner(), time.Minute).WithCommand()
	r, ok = unchanged.NewRunner("/tmp/home").(*suite.CommandTestRunner)
	require.True(t, ok)
	assert.Equal(t, []string{"go", "test"}, r.Argv)
}
