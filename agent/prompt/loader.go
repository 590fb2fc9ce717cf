package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/selector.txt
	selectorRaw string

	//go:embed template/synthesizer.txt
	synthesizerRaw string

	//go:embed template/validator.txt
	validatorRaw string

	//go:embed template/router.txt
	routerRaw string

	//go:embed template/specialist.txt
	specialistRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Selector    string
	Synthesizer string
	Validator   string
	Router      string
	Specialist  string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// This is safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Selector:    strings.TrimSpace(selectorRaw),
		Synthesizer: strings.TrimSpace(synthesizerRaw),
		Validator:   strings.TrimSpace(validatorRaw),
		Router:      strings.TrimSpace(routerRaw),
		Specialist:  strings.TrimSpace(specialistRaw),
	}
}
