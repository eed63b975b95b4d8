package agent

import (
	"fmt"
	"strings"
)

type fact struct {
	key   string
	value string
}

// PromptBuilder helps construct per-turn instructions for agents
type PromptBuilder struct {
	systemPrompt string
	facts        []fact
	context      []string
	blocks       []string
}

// NewPromptBuilder creates a new prompt builder with a base system prompt
func NewPromptBuilder(systemPrompt string) *PromptBuilder {
	return &PromptBuilder{systemPrompt: systemPrompt}
}

// AddFact adds a key-value fact to the prompt. Facts keep insertion order and a
// repeated key replaces the earlier value.
func (pb *PromptBuilder) AddFact(key, value string) *PromptBuilder {
	for i := range pb.facts {
		if pb.facts[i].key == key {
			pb.facts[i].value = value
			return pb
		}
	}
	pb.facts = append(pb.facts, fact{key: key, value: value})
	return pb
}

// AddContext adds contextual information to the prompt
func (pb *PromptBuilder) AddContext(context string) *PromptBuilder {
	pb.context = append(pb.context, context)
	return pb
}

// AddBlock appends a preformatted block (e.g. recalled memories) verbatim. Blank
// blocks are ignored.
func (pb *PromptBuilder) AddBlock(block string) *PromptBuilder {
	if strings.TrimSpace(block) != "" {
		pb.blocks = append(pb.blocks, strings.Trim(block, "\n"))
	}
	return pb
}

// Build constructs the final prompt
func (pb *PromptBuilder) Build() string {
	parts := []string{pb.systemPrompt}

	if len(pb.facts) > 0 {
		parts = append(parts, "\n## Key Facts:")
		for _, f := range pb.facts {
			parts = append(parts, fmt.Sprintf("- %s: %s", f.key, f.value))
		}
	}

	if len(pb.context) > 0 {
		parts = append(parts, "\n## Recent Context:")
		for _, ctx := range pb.context {
			parts = append(parts, fmt.Sprintf("- %s", ctx))
		}
	}

	for _, block := range pb.blocks {
		parts = append(parts, "\n"+block)
	}

	return strings.Join(parts, "\n")
}
