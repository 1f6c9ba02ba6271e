package generate

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/autocoder/internal/workspace"
)

const designSystemPrompt = `You are a software architect. Given a specification, write a concise
code design for a %s implementation:

- the files to create and what each one holds
- the public functions, types and their signatures
- how data flows between them
- edge cases the implementation must handle

Respond with the design only. Do not write the implementation.`

const complexitySystemPrompt = `You are an assistant that takes in a code design and determines if it is
too complex to be coded within thirty minutes and within one to three files.
Call set_code_complexity once.`

const planSystemPrompt = `You are an assistant that takes in a code design and creates a list of
action items necessary to complete the task. Your requirements are:

1. You must return a JSON list of strings. (e.g. ["item1", "item2", "item3"])
2. Each item should be clear and concise.
3. Each item must be implementable on its own, in order, on top of the
   items before it.`

const selectSystemPrompt = `You are an assistant that must choose a subcoder to complete the following
task. Call choose_subcoder once.`

const codeSystemPrompt = `You are an expert %s developer. Implement the code design you are given.

Write each file with the write_file tool, using paths relative to the
project root. Do not overwrite files that already exist; choose another file
name instead. Call finish when every file of the design has been written.`

const refineSystemPrompt = `You are an expert %s developer. The code below failed its tests. Fix the
code so that it satisfies the specification and the tests pass.

Rewrite whole files with the write_file tool, using paths relative to the
project root. Call finish when you are done.`

const unitTestSystemPrompt = `You are an expert %s developer writing unit tests. Write focused tests for
the individual functions and types of the code below, derived from the
specification rather than from the current behavior of the code.

%s

Write each file with the write_file tool, using paths relative to the
project root. Call finish when you are done.`

const integrationTestSystemPrompt = `You are an expert %s developer writing integration tests. Write tests that
exercise the code below end to end, the way a user of the specification
would, combining its parts rather than testing them one at a time.

%s

Write each file with the write_file tool, using paths relative to the
project root. Call finish when you are done.`

// promptInput collects the sections of a user prompt. Empty sections are
// left out.
type promptInput struct {
	Spec         string
	Design       string
	ProjectFiles []string
	Files        []workspace.File
	TestFiles    []workspace.File
	Feedback     string
	TestResults  string
}

func (p promptInput) render() string {
	var b strings.Builder
	section := func(title, body string) {
		if strings.TrimSpace(body) == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s", title, strings.TrimSpace(body))
	}

	section("Specification", p.Spec)
	section("Code Design", p.Design)
	if len(p.ProjectFiles) > 0 {
		section("Existing Project Files", "- "+strings.Join(p.ProjectFiles, "\n- "))
	}
	section("Files", renderFiles(p.Files))
	section("Existing Tests", renderFiles(p.TestFiles))
	section("Test Results", p.TestResults)
	section("Feedback", p.Feedback)
	return b.String()
}

func renderFiles(files []workspace.File) string {
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "### %s\n```\n%s\n```\n\n", f.Path, strings.TrimRight(f.Content, "\n"))
	}
	return b.String()
}
