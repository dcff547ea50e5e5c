// Package minds loads the .minds/ workspace configuration: the team, the
// LLM provider catalog, member system prompts and memories, and the
// diligence text. Loads are cached and invalidated by an fsnotify watch so
// the generation loop can reload fresh minds every iteration cheaply.
package minds

// Team mirrors .minds/team.yaml.
type Team struct {
	Members        map[string]Member `yaml:"members"`
	MemberDefaults MemberDefaults    `yaml:"member_defaults"`
}

// MemberDefaults supplies provider/model for members that set none.
type MemberDefaults struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// Member is one configured team member.
type Member struct {
	ID               string         `yaml:"-"`
	Name             string         `yaml:"name"`
	Provider         string         `yaml:"provider"`
	Model            string         `yaml:"model"`
	Streaming        *bool          `yaml:"streaming"`
	ModelParams      map[string]any `yaml:"model_params"`
	FBRModelParams   map[string]any `yaml:"fbr_model_params"`
	FBREffort        *int           `yaml:"fbr_effort"`         // 0..100; 0 disables FBR
	DiligencePushMax *int           `yaml:"diligence_push_max"` // default 3
	Tools            []string       `yaml:"tools"`
}

// DefaultDiligencePushMax is used when a member does not set
// diligence_push_max.
const DefaultDiligencePushMax = 3

// EffectiveFBREffort returns the member's fbr_effort, defaulting to 1.
func (m Member) EffectiveFBREffort() int {
	if m.FBREffort == nil {
		return 1
	}
	return *m.FBREffort
}

// EffectiveDiligencePushMax returns the member's diligence_push_max,
// defaulting to DefaultDiligencePushMax.
func (m Member) EffectiveDiligencePushMax() int {
	if m.DiligencePushMax == nil {
		return DefaultDiligencePushMax
	}
	return *m.DiligencePushMax
}

// WantsStreaming reports whether the member requests streaming generation.
func (m Member) WantsStreaming() bool {
	return m.Streaming == nil || *m.Streaming
}

// LLMConfig mirrors .minds/llm.yaml.
type LLMConfig struct {
	Providers map[string]ProviderSpec `yaml:"providers"`
}

// ProviderSpec is one provider entry of llm.yaml.
type ProviderSpec struct {
	APIType           string               `yaml:"apiType"`
	BaseURL           string               `yaml:"base_url"`
	APIKeyEnv         string               `yaml:"api_key_env"`
	RequestsPerMinute int                  `yaml:"requests_per_minute"`
	Models            map[string]ModelSpec `yaml:"models"`
}

// ModelSpec carries per-model limits used by context-health evaluation.
type ModelSpec struct {
	ContextLength     int `yaml:"context_length"`
	InputLength       int `yaml:"input_length"`
	ContextWindow     int `yaml:"context_window"`
	OptimalMaxTokens  int `yaml:"optimal_max_tokens"`
	CriticalMaxTokens int `yaml:"critical_max_tokens"`
	// Remediation guide cadence while in caution, in generations.
	CautionRemediationCadenceGenerations int `yaml:"caution_remediation_cadence_generations"`
}

// HardLimitTokens returns the model's hard context limit:
// context_length when set, else input_length.
func (m ModelSpec) HardLimitTokens() int {
	if m.ContextLength > 0 {
		return m.ContextLength
	}
	return m.InputLength
}

// AgentMinds is everything the generation loop reloads per iteration for
// one agent.
type AgentMinds struct {
	Team         *Team
	Agent        Member
	SystemPrompt string
	Memories     []string
	AgentTools   []string
}
