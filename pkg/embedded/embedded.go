package embedded

import (
	_ "embed"
)

// Prompt templates and system instructions, one pair per template variant.
// Templates are rendered with text/template and receive Notes, Style and Tone.

//go:embed data/prompts/guided_system.txt
var GuidedSystemTxt []byte

//go:embed data/prompts/guided_prompt.tmpl
var GuidedPromptTmpl []byte

//go:embed data/prompts/gentle_system.txt
var GentleSystemTxt []byte

//go:embed data/prompts/gentle_prompt.tmpl
var GentlePromptTmpl []byte
