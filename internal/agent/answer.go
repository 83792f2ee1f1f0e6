package agent

import (
	"encoding/json"

	"github.com/lifanwar/warung22/internal/perplexity"
)

// decodeAnswerJSON attempts the inner decode of a JSON-encoded answer
// object. ok is false when the string is not such an object.
func decodeAnswerJSON(s string) (string, bool) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return "", false
	}
	if inner, ok := payload["answer"].(string); ok {
		return inner, true
	}
	return "", false
}

func keysOf(rec perplexity.StepRecord) []string {
	keys := make([]string, 0, len(rec))
	for key := range rec {
		keys = append(keys, key)
	}
	return keys
}
