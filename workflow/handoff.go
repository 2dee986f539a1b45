package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// summaryLimit caps the always-present summary field.
	summaryLimit = 500
	// recordValueLimit caps hand-off values rendered into a Record. Longer
	// values are lossy by design.
	recordValueLimit = 100
)

// fencedJSONRe matches the first fenced JSON object block in agent output.
var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractHandoff builds the hand-off payload from raw agent output:
//  1. the first fenced JSON block, if any, stringified key by key
//  2. a "field: value" line match for each declared required output field
//  3. an always-present "summary" field (first 500 characters of the output)
//
// Values are flattened to strings; nested JSON structures are re-serialized.
// This is deliberately a best-effort heuristic parser.
func ExtractHandoff(output string, requiredFields []string) map[string]string {
	payload := make(map[string]string)

	if m := fencedJSONRe.FindStringSubmatch(output); m != nil {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(m[1]), &parsed); err == nil {
			for k, v := range parsed {
				payload[k] = stringifyValue(v)
			}
		}
	}

	for _, field := range requiredFields {
		if field == "" {
			continue
		}
		re, err := regexp.Compile(`(?im)^\s*(?:[-*]\s*)?` + regexp.QuoteMeta(field) + `\s*[:=]\s*(.+)$`)
		if err != nil {
			continue
		}
		if m := re.FindStringSubmatch(output); m != nil {
			payload[field] = strings.TrimSpace(m[1])
		}
	}

	payload["summary"] = truncate(output, summaryLimit)
	return payload
}

// stringifyValue flattens a decoded JSON value to its string form.
func stringifyValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// mergeHandoff copies src into dst; keys from later steps overwrite earlier
// ones on collision.
func mergeHandoff(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Record is the informational hand-off record constructed between steps. It
// does not gate execution; engines log it and publish it to the status sink.
type Record struct {
	FromAgent        string            `json:"from_agent"`
	ToAgent          string            `json:"to_agent"`
	Summary          string            `json:"summary"`
	KeyPoints        []string          `json:"key_points,omitempty"`
	Handoff          map[string]string `json:"handoff,omitempty"`
	OriginalRequest  string            `json:"original_request"`
	NextInstructions string            `json:"next_instructions,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// buildRecord assembles a hand-off record from the previous step's output and
// the accumulated payload. Values are truncated to 100 characters each.
func buildRecord(fromAgent, toAgent, previousOutput string, handoff map[string]string, request, nextInstructions string) Record {
	truncated := make(map[string]string, len(handoff))
	keyPoints := make([]string, 0, len(handoff))
	for k, v := range handoff {
		if k == "summary" {
			continue
		}
		tv := truncate(v, recordValueLimit)
		truncated[k] = tv
		keyPoints = append(keyPoints, fmt.Sprintf("%s: %s", k, tv))
	}
	return Record{
		FromAgent:        fromAgent,
		ToAgent:          toAgent,
		Summary:          truncate(previousOutput, summaryLimit),
		KeyPoints:        keyPoints,
		Handoff:          truncated,
		OriginalRequest:  request,
		NextInstructions: nextInstructions,
		CreatedAt:        time.Now().UTC(),
	}
}
