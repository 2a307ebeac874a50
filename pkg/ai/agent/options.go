package agent

import (
	"github.com/deskmate/deskmate/pkg/ai/provider"
	"github.com/deskmate/deskmate/pkg/ai/tool"
)

type Option func(*Agent)

func WithModel(m provider.LanguageModel) Option {
	return func(a *Agent) {
		a.Model = m
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		a.SystemPrompt = prompt
	}
}

func WithMaxSteps(steps int) Option {
	return func(a *Agent) {
		a.MaxSteps = steps
	}
}

func WithTools(tools ...tool.Tool) Option {
	return func(a *Agent) {
		a.Tools = append(a.Tools, tools...)
	}
}
