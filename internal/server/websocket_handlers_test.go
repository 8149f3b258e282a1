package server

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFrame_EscapesMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  string
	}{
		{"plain", "too many connections"},
		{"quotes", `user "ada" has too many connections`},
		{"backslash and newline", "path C:\\feed\nretry"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var body map[string]string
			require.NoError(t, json.Unmarshal(errorFrame(errors.New(tt.msg)), &body))
			assert.Equal(t, map[string]string{"error": tt.msg}, body)
		})
	}
}
