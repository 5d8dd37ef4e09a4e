package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Format replaces {name} placeholders with vars[name]. Unknown placeholders
// are left as they are.
func Format(template string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ErrNoJSON is returned when a reply holds no decodable JSON object.
var ErrNoJSON = errors.New("no json object in reply")

// ParseJSON decodes the JSON object of a model reply into out. A fenced
// block is preferred; otherwise the raw text, then its outermost {...} span,
// are tried.
func ParseJSON(text string, out any) error {
	candidate := strings.TrimSpace(text)
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	}
	err := json.Unmarshal([]byte(candidate), out)
	if err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if json.Unmarshal([]byte(text[start:end+1]), out) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrNoJSON, err)
}
