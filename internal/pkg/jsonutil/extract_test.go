package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractObject(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "sure\n```json\n{\"a\": {\"b\": 2}}\n```\nthanks", `{"a": {"b": 2}}`, true},
		{"prose", `I pick {"id":"x","note":"brace } in string"} ok`, `{"id":"x","note":"brace } in string"}`, true},
		{"unterminated", `{"a":1`, "", false},
		{"empty", "   ", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractObject(tc.raw)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
