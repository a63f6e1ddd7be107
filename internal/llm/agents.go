package llm

import "github.com/hsn0918/deepqa/internal/config"

// Agents bundles the three model roles of the research loop, each bound to
// its fixed system prompt.
type Agents struct {
	// Main synthesizes the final user-visible answer.
	Main Generator
	// Researcher decides satisfaction and emits sub-questions.
	Researcher Generator
	// QueryResearcher extracts answers from retrieved context.
	QueryResearcher Generator
}

// NewAgents builds the bundle on a shared endpoint configuration.
func NewAgents(cfg config.LLMConfig) *Agents {
	return &Agents{
		Main:            NewModel(cfg, MainPrompt),
		Researcher:      NewModel(cfg, ResearcherPrompt),
		QueryResearcher: NewModel(cfg, QueryResearcherPrompt),
	}
}

// Clone returns a bundle of per-role clones with private usage slots.
func (a *Agents) Clone() *Agents {
	return &Agents{
		Main:            a.Main.Clone(),
		Researcher:      a.Researcher.Clone(),
		QueryResearcher: a.QueryResearcher.Clone(),
	}
}
