package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/prism/internal/utils"
)

// ErrUnparseable is returned when model output holds no JSON object, even after
// extracting the text between the first '{' and the last '}'.
var ErrUnparseable = errors.New("model output is not a JSON object")

// Parse decodes raw model output into a JSON object. The whole output is tried
// first; on failure the outermost brace-delimited substring is tried.
func Parse(raw string) (map[string]any, error) {
	if obj, ok := decodeObject(stripFence(raw)); ok {
		return obj, nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		if obj, ok := decodeObject(raw[start : end+1]); ok {
			return obj, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrUnparseable, utils.TruncateForLog(raw, 120))
}

func decodeObject(text string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// stripFence removes a surrounding markdown code fence.
func stripFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}
