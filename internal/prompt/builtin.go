package prompt

// builtinTemplates maps template filename to content.
var builtinTemplates = map[string]string{
	"analyze.md":          analyzeTemplate,
	"synthesize-test.md":  synthesizeTestTemplate,
	"synthesize-fix.md":   synthesizeFixTemplate,
}

const analyzeTemplate = `You are triaging a failed continuous-integration run. Respond with a
single JSON document and nothing else — no prose, no markdown fence.

Repository: {{repo}}
Workflow: {{workflow_name}}
Commit: {{sha}}

## Log excerpt
The excerpt below has already been localized to the most relevant lines
and truncated to fit a byte budget. Line numbers reflect the original log.

` + "```" + `
{{log_excerpt}}
` + "```" + `

## Required schema

Return exactly this shape:

` + "```" + `json
{
  "error_kind": "ImportError|ModuleNotFoundError|TypeError|AttributeError|AssertionError|SyntaxError|NameError|ValueError|KeyError|Other",
  "file_path": "path relative to the repository root",
  "line": 0,
  "function_name": "enclosing function, or empty",
  "error_message": "the exact error message",
  "frames": ["ordered stack frame strings, outermost first"],
  "failing_test": "dotted test name, or empty",
  "confidence": 0.0
}
` + "```" + `

- error_kind must be one of the enumerated values; use "Other" if none fit.
- confidence is your belief in [0, 1] that this diagnosis identifies the
  true root cause and that it is mechanically reproducible in isolation.
- Do not guess a file path or line you cannot see evidence for in the
  excerpt; when unsure, lower confidence rather than fabricate detail.
`

const synthesizeTestTemplate = `You are writing a minimal regression test that reproduces a CI failure
before it is fixed. Respond with a single test function and nothing
else — no prose, no markdown fence, no import block unless the test
requires an import not already visible in the existing test file.

Repository: {{repo}}
Target file: {{file_path}}

## Analysis
Kind: {{error_kind}}
Message: {{error_message}}
Function: {{function_name}}
{{#if failing_test}}
Failing test observed in CI: {{failing_test}}
{{/if}}

## Current source of the target file

` + "```" + `
{{source}}
` + "```" + `

{{#if prior_test}}
## Existing test file for this module (truncated)

` + "```" + `
{{prior_test}}
` + "```" + `
{{/if}}

## Requirements

1. Exactly one test function, in the same language as the target file.
2. Name it test_<subject>_<edge_case>, describing the specific failure
   mode, not the file under test.
3. Give it a short one-line docstring stating what it proves.
4. No mocking unless the failure cannot be reproduced without it.
5. The test must currently fail against the source shown above and must
   pass once the underlying defect is fixed.
`

const synthesizeFixTemplate = `You are proposing a minimal source patch for a failing regression test.
Respond with a single JSON document and nothing else — no prose, no
markdown fence.

Repository: {{repo}}
Target file: {{file_path}}

## Analysis
Kind: {{error_kind}}
Message: {{error_message}}
Function: {{function_name}}

## Current source of the target file

` + "```" + `
{{source}}
` + "```" + `

## Latest test output

` + "```" + `
{{test_output}}
` + "```" + `

{{#if prior_attempts}}
## Prior failed attempts
Each of these was already tried and rejected. Do not repeat them.

{{prior_attempts}}
{{/if}}

## Required schema

Return exactly this shape:

` + "```" + `json
{
  "file_path": "{{file_path}}",
  "original_code": "the exact source span being replaced, copied verbatim",
  "fixed_code": "the replacement source span",
  "explanation": "one or two sentences on why this fixes the root cause"
}
` + "```" + `

- original_code must be copied character-for-character from the source
  shown above, including whitespace, so it can be located by exact
  substring match. It must appear exactly once in the file.
- Change as few lines as possible. Do not reformat or refactor
  unrelated code.
`
