package llm

import "strings"

// CleanJSONContent strips markdown code fences and leading chatter so the
// payload can be unmarshalled directly. Models in JSON mode still wrap the
// object in ```json fences often enough that every call site needs this.
func CleanJSONContent(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	// Drop any prefix chatter before the first JSON value.
	if idx := strings.IndexAny(content, "{["); idx > 0 {
		content = content[idx:]
	}

	return content
}
