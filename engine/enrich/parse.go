package enrich

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/altmanac/altmanac/engine/domain"
)

// ParseStructured decodes a model response into out. Responses wrapped in
// markdown code fences are unwrapped first; anything that then fails to
// parse as JSON is a generation error, not a transport error.
func ParseStructured(raw string, out any) error {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if i := strings.LastIndex(cleaned, "```"); i >= 0 {
			cleaned = cleaned[:i]
		}
		cleaned = strings.TrimSpace(cleaned)
	}
	if cleaned == "" {
		return fmt.Errorf("empty response: %w", domain.ErrGeneration)
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("parse response: %v: %w", err, domain.ErrGeneration)
	}
	return nil
}
