package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
)

var jsonBlockRegex = regexp.MustCompile("```(?:json)?\\s*\\n([\\s\\S]*?)```")

// ExtractJSON pulls a JSON object out of model output. Fenced ```json
// blocks are preferred; otherwise the first balanced { ... } region is
// used.
func ExtractJSON(content string) string {
	matches := jsonBlockRegex.FindStringSubmatch(content)
	if len(matches) > 1 {
		candidate := strings.TrimSpace(matches[1])
		if candidate != "" {
			return candidate
		}
	}

	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}

	braceCount := 0
	inString := false
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '"':
			if i == 0 || content[i-1] != '\\' {
				inString = !inString
			}
		case '{':
			if !inString {
				braceCount++
			}
		case '}':
			if !inString {
				braceCount--
				if braceCount == 0 {
					return content[start : i+1]
				}
			}
		}
	}
	return ""
}

// decodeAgentJSON extracts and unmarshals a JSON payload from model output
// into out, returning a coded error naming the agent on failure
func decodeAgentJSON(agentName, content string, out any) error {
	payload := ExtractJSON(content)
	if payload == "" {
		return errors.NewMalformedAgentOutputError(agentName, nil)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return errors.NewMalformedAgentOutputError(agentName, err)
	}
	return nil
}
