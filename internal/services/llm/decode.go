package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// DecodeLLMJSON unmarshals a model reply into target, retrying once after
// stripping a code fence or surrounding prose.
func DecodeLLMJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	directErr := decodeInto(trimmed, target, false)
	if directErr == nil {
		return nil
	}
	extracted := extractJSON(trimmed)
	if extracted == "" || extracted == trimmed {
		return fmt.Errorf("%w (payload snippet: %s)", directErr, snippet(trimmed))
	}
	if err := decodeInto(extracted, target, false); err != nil {
		return fmt.Errorf("%w (extracted payload snippet: %s)", err, snippet(extracted))
	}
	return nil
}

// DecodeStrict is DecodeLLMJSON with unknown fields rejected.
func DecodeStrict(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	candidates := []string{trimmed}
	if extracted := extractJSON(trimmed); extracted != "" && extracted != trimmed {
		candidates = append(candidates, extracted)
	}
	var lastErr error
	for _, candidate := range candidates {
		if lastErr = decodeInto(candidate, target, true); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w (payload snippet: %s)", lastErr, snippet(trimmed))
}

// decodeInto decodes into a fresh value and copies it to target only on
// success, so a failed attempt leaves target untouched.
func decodeInto(payload string, target any, strict bool) error {
	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Pointer || ptr.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer, got %T", target)
	}
	fresh := reflect.New(ptr.Elem().Type())
	dec := json.NewDecoder(strings.NewReader(payload))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(fresh.Interface()); err != nil {
		return err
	}
	ptr.Elem().Set(fresh.Elem())
	return nil
}

func extractJSON(content string) string {
	body := strings.TrimSpace(stripFence(content))
	if body == "" {
		return ""
	}
	if body[0] == '{' || body[0] == '[' {
		return body
	}
	if start := strings.Index(body, "{"); start >= 0 {
		if end := strings.LastIndex(body, "}"); end > start {
			return strings.TrimSpace(body[start : end+1])
		}
	}
	return body
}

func stripFence(content string) string {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "```")
	if start < 0 {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[start+3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}
