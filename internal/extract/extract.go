// Package extract turns free-form reply bodies into structured answers.
//
// Two tiers are tried in order: an embedded JSON object, then
// "Key: value" lines. Both are pure functions of the input body.
package extract

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/nhle/formpoll/internal/model"
)

// jsonSpan matches from the first '{' to the last '}' in the body.
var jsonSpan = regexp.MustCompile(`(?s)\{.*\}`)

// keyValueLine matches "<key>:<whitespace><value>" on a single line.
var keyValueLine = regexp.MustCompile(`^([^:]+):\s+(.+)$`)

// Extract returns the answers found in body, or false when the body holds
// no structured data.
func Extract(body string) (model.Answers, bool) {
	if answers, ok := fromJSON(body); ok {
		return answers, true
	}
	if answers, ok := fromLines(body); ok {
		return answers, true
	}
	return nil, false
}

// fromJSON decodes the outermost brace span. A span that is not a valid,
// non-empty JSON object is ignored so line parsing can still run.
func fromJSON(body string) (model.Answers, bool) {
	span := jsonSpan.FindString(body)
	if span == "" {
		return nil, false
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &raw); err != nil || len(raw) == 0 {
		return nil, false
	}

	answers := make(model.Answers, len(raw))
	for key, value := range raw {
		answers[key] = stringify(value)
	}
	return answers, true
}

// stringify renders a JSON value as the string a candidate would have
// typed: strings unquoted, scalars in literal form, null as empty, and
// composite values as compact JSON.
func stringify(value json.RawMessage) string {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return string(trimmed)
	}
	return compact.String()
}

// fromLines collects "Key: value" pairs. Quoted reply lines are skipped so
// the original request echoed below a reply is not read back as answers.
func fromLines(body string) (model.Answers, bool) {
	answers := make(model.Answers)

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}

		m := keyValueLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		key := strings.TrimSpace(m[1])
		value := strings.TrimSpace(m[2])
		if key == "" || value == "" {
			continue
		}
		answers[key] = value
	}

	if len(answers) == 0 {
		return nil, false
	}
	return answers, true
}
