package perplexity

// Mode selects the upstream answer engine's effort level. Every mode except
// ModeAuto consumes one unit of the session's elevated query budget.
type Mode string

const (
	ModeAuto         Mode = "auto"
	ModePro          Mode = "pro"
	ModeReasoning    Mode = "reasoning"
	ModeDeepResearch Mode = "deep_research"
)

func (m Mode) elevated() bool {
	return m == ModePro || m == ModeReasoning || m == ModeDeepResearch
}

// serverMode is the coarse mode string the upstream service expects, which
// collapses the four client modes into two.
func (m Mode) serverMode() string {
	if m == ModeAuto {
		return "concise"
	}
	return "copilot"
}

// Source restricts which corpora the answer engine searches.
type Source string

const (
	SourceWeb     Source = "web"
	SourceScholar Source = "scholar"
	SourceSocial  Source = "social"
)

var validSources = map[Source]bool{
	SourceWeb:     true,
	SourceScholar: true,
	SourceSocial:  true,
}

// modelPreference resolves a (mode, model) pair into the server-recognized
// preference code. The empty model string is the service default for its mode.
// The keys mirror the upstream web client verbatim, including the misspelled
// 'gpt-5.1-thingking', since the service matches on the literal string.
var modelPreference = map[Mode]map[string]string{
	ModeAuto: {
		"": "turbo",
	},
	ModePro: {
		"":                  "pplx_pro",
		"sonar":             "experimental",
		"gpt-5.1":           "gpt51",
		"claude-4.5-sonnet": "claude45sonnet",
		"gemini-2.5-pro":    "gemini25pro",
		"grok-4":            "grok4",
	},
	ModeReasoning: {
		"":                           "pplx_reasoning",
		"gpt-5.1-thingking":          "gpt51_thinking",
		"claude-4.5-sonnet-thinking": "claude45sonnetthinking",
		"gemini-3.0-pro":             "gemini30pro",
		"kimi-k2-thinking":           "kimik2thinking",
	},
	ModeDeepResearch: {
		"": "pplx_alpha",
	},
}

func validMode(m Mode) bool {
	_, ok := modelPreference[m]
	return ok
}

// modelAllowed reports whether the model may be requested in the given mode.
// Only enforced for owned accounts, anonymous sessions are left to the
// service's own judgement.
func modelAllowed(m Mode, model string) bool {
	prefs, ok := modelPreference[m]
	if !ok {
		return false
	}
	_, ok = prefs[model]
	return ok
}
