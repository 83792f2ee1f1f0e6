package perplexity

import "testing"

func TestModelPreference_Exhaustive(t *testing.T) {
	want := map[Mode]map[string]string{
		ModeAuto: {"": "turbo"},
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
		ModeDeepResearch: {"": "pplx_alpha"},
	}
	if len(modelPreference) != len(want) {
		t.Fatalf("mode count mismatch: got %v, want %v", len(modelPreference), len(want))
	}
	for mode, pairs := range want {
		got, ok := modelPreference[mode]
		if !ok {
			t.Fatalf("mode %v missing from preference table", mode)
		}
		if len(got) != len(pairs) {
			t.Fatalf("mode %v: model count mismatch: got %v, want %v", mode, len(got), len(pairs))
		}
		for model, code := range pairs {
			if got[model] != code {
				t.Fatalf("mode %v, model %q: got code %q, want %q", mode, model, got[model], code)
			}
		}
	}
}

func TestModelAllowed(t *testing.T) {
	if !modelAllowed(ModePro, "grok-4") {
		t.Fatal("expected grok-4 to be allowed in pro mode")
	}
	if !modelAllowed(ModeDeepResearch, "") {
		t.Fatal("expected default model to be allowed in deep_research mode")
	}
	if modelAllowed(ModeAuto, "grok-4") {
		t.Fatal("expected grok-4 to be rejected in auto mode")
	}
	if modelAllowed(Mode("copilot"), "") {
		t.Fatal("expected unknown mode to reject every model")
	}
}

func TestMode_ServerMode(t *testing.T) {
	cases := map[Mode]string{
		ModeAuto:         "concise",
		ModePro:          "copilot",
		ModeReasoning:    "copilot",
		ModeDeepResearch: "copilot",
	}
	for mode, want := range cases {
		if got := mode.serverMode(); got != want {
			t.Fatalf("mode %v: got server mode %q, want %q", mode, got, want)
		}
	}
}

func TestMode_Elevated(t *testing.T) {
	if ModeAuto.elevated() {
		t.Fatal("auto must not consume the elevated budget")
	}
	for _, mode := range []Mode{ModePro, ModeReasoning, ModeDeepResearch} {
		if !mode.elevated() {
			t.Fatalf("mode %v must consume the elevated budget", mode)
		}
	}
}
