package vision

import (
	_ "embed"
	"strings"
)

//go:embed prompts/schedule_v1.txt
var scheduleV1 string

const fixJSONPrompt = `The previous answer was not valid JSON. Return the same schedule data as one valid JSON object that matches the requested schema. Output JSON only.

Previous answer:
`

// buildPrompt prefixes the extraction prompt with submitter context when present.
func buildPrompt(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return scheduleV1
	}
	var b strings.Builder
	b.WriteString("Context from the person who took the photo (use it to fill gaps such as the origin station):\n")
	b.WriteString(hint)
	b.WriteString("\n\n")
	b.WriteString(scheduleV1)
	return b.String()
}

// stripFences removes a surrounding markdown code fence and any prose before
// the first '{' or after the last '}'.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}
