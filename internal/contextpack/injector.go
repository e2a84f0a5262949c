package contextpack

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aj47/acp-remote/internal/config"
	"github.com/aj47/acp-remote/internal/logging"
	"github.com/aj47/acp-remote/internal/memory"
	"github.com/aj47/acp-remote/internal/skills"
)

// maxMemories caps how many ranked memories are injected into a prefix.
const maxMemories = 15

// Injector assembles the one-shot context prefix sent with the first prompt
// of a fresh agent session: persona, memories, guidelines, and skills.
type Injector struct {
	memories         memory.Provider
	library          skills.Library
	injectMemories   bool
	globalGuidelines string
	logger           logging.Logger
}

// Params configures an Injector.
type Params struct {
	Memories         memory.Provider
	Library          skills.Library
	InjectMemories   bool
	GlobalGuidelines string
	Logger           logging.Logger
}

// NewInjector builds an Injector.
func NewInjector(params Params) *Injector {
	logger := params.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("ContextInjector")
	}
	return &Injector{
		memories:         params.Memories,
		library:          params.Library,
		injectMemories:   params.InjectMemories,
		globalGuidelines: params.GlobalGuidelines,
		logger:           logger,
	}
}

// BuildPrefix renders the context prefix for profile. Section order is fixed:
// persona prompt, persona properties, memories, guidelines, skills. Sections
// that are empty are omitted entirely; when everything is empty the result is
// the empty string and callers must not prepend a separator. Memory or skill
// failures drop their section but never abort prompt sending.
func (inj *Injector) BuildPrefix(ctx context.Context, profile *config.AgentProfile) string {
	var sections []string

	var persona *config.Persona
	if profile != nil {
		persona = profile.Persona
	}

	if persona != nil {
		if prompt := strings.TrimSpace(persona.SystemPrompt); prompt != "" {
			sections = append(sections, prompt)
		}
		if block := renderProperties(persona.Properties); block != "" {
			sections = append(sections, block)
		}
	}

	if inj.injectMemories {
		if block := inj.renderMemories(ctx); block != "" {
			sections = append(sections, block)
		}
	}

	if block := inj.renderGuidelines(persona); block != "" {
		sections = append(sections, block)
	}

	if profile != nil {
		if block := inj.renderSkills(profile.EnabledSkills); block != "" {
			sections = append(sections, block)
		}
	}

	return strings.Join(sections, "\n\n")
}

func renderProperties(properties map[string]string) string {
	if len(properties) == 0 {
		return ""
	}
	keys := make([]string, 0, len(properties))
	for key := range properties {
		if strings.TrimSpace(properties[key]) != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("## About this assistant\n")
	for _, key := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", key, strings.TrimSpace(properties[key]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (inj *Injector) renderMemories(ctx context.Context) string {
	if inj.memories == nil {
		return ""
	}
	entries, err := inj.memories.List(ctx)
	if err != nil {
		inj.logger.Warn("skipping memory section: %v", err)
		return ""
	}
	ranked := memory.Rank(entries, maxMemories)
	if len(ranked) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Memories about the user\n")
	for _, entry := range ranked {
		fmt.Fprintf(&b, "- %s\n", flatten(entry.Content))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (inj *Injector) renderGuidelines(persona *config.Persona) string {
	var parts []string
	if persona != nil {
		if text := strings.TrimSpace(persona.Guidelines); text != "" {
			parts = append(parts, text)
		}
	}
	if text := strings.TrimSpace(inj.globalGuidelines); text != "" {
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		return ""
	}
	return "## Guidelines\n" + strings.Join(parts, "\n\n")
}

func (inj *Injector) renderSkills(enabled []string) string {
	active := inj.library.Enabled(enabled)
	if len(active) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Available skills\n")
	for _, skill := range active {
		fmt.Fprintf(&b, "- %s: %s\n", skill.Name, flatten(skill.Description))
	}
	return strings.TrimRight(b.String(), "\n")
}

// flatten collapses a multi-line value onto one line.
func flatten(text string) string {
	fields := strings.Fields(text)
	return strings.Join(fields, " ")
}
