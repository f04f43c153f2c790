package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseFailure is returned by Structured when the model's response text
// could not be decoded into the declared shape. It is a value, not an
// error: callers (agents) are expected to degrade rather than propagate it.
type ParseFailure struct {
	Raw    string
	Reason string
}

func (f *ParseFailure) Error() string {
	return fmt.Sprintf("structured decode failed: %s", f.Reason)
}

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// Structured issues a chat completion and decodes the response into v,
// a pointer to the declared shape. It applies the same transient-error
// retry discipline as Chat (inside Provider.Chat), plus a decode stage:
// strip surrounding code-fence/language-tag wrappers, locate the first
// balanced JSON value, unmarshal into v. If decoding fails, the call is
// retried exactly once with an appended "return only JSON" directive
// before giving up and returning a *ParseFailure.
func Structured(ctx context.Context, p Provider, req ChatRequest, v interface{}) error {
	req.ResponseFormat = "json_object"

	resp, err := p.Chat(ctx, req)
	if err != nil {
		return err
	}

	if decodeErr := decodeJSON(resp.Content, v); decodeErr == nil {
		return nil
	} else {
		nudged := req
		nudged.Messages = append(append([]Message{}, req.Messages...), Message{
			Role:    "user",
			Content: "Your previous response could not be parsed as JSON. Return only the JSON object, with no surrounding text or code fences.",
		})

		resp2, err2 := p.Chat(ctx, nudged)
		if err2 != nil {
			return &ParseFailure{Raw: resp.Content, Reason: decodeErr.Error()}
		}
		if decodeErr2 := decodeJSON(resp2.Content, v); decodeErr2 != nil {
			return &ParseFailure{Raw: resp2.Content, Reason: decodeErr2.Error()}
		}
		return nil
	}
}

// decodeJSON strips markdown code fences, locates the first balanced JSON
// object or array in text, and unmarshals it into v.
func decodeJSON(text string, v interface{}) error {
	cleaned := extractJSON(text)
	if cleaned == "" {
		return fmt.Errorf("no JSON value found in response")
	}
	return json.Unmarshal([]byte(cleaned), v)
}

// extractJSON strips surrounding code fences and returns the first
// balanced JSON object ({...}) or array ([...]) substring it finds.
// Returns "" when no JSON value can be located.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if m := codeBlockRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	if text == "" {
		return ""
	}
	if text[0] == '{' || text[0] == '[' {
		if end := matchingBrace(text, 0); end >= 0 {
			return text[:end+1]
		}
		return text
	}

	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')
	start := -1
	switch {
	case objStart < 0:
		start = arrStart
	case arrStart < 0:
		start = objStart
	case objStart < arrStart:
		start = objStart
	default:
		start = arrStart
	}
	if start < 0 {
		return ""
	}

	if end := matchingBrace(text, start); end >= 0 {
		return text[start : end+1]
	}
	return ""
}

// matchingBrace returns the index of the brace/bracket that closes the
// one found at text[start], respecting string literals and escapes.
// Returns -1 if unbalanced.
func matchingBrace(text string, start int) int {
	open := text[start]
	var close byte
	switch open {
	case '{':
		close = '}'
	case '[':
		close = ']'
	default:
		return -1
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
