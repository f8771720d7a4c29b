package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_Getters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctx       *Context
		version   string
		buildDate string
		systemID  string
	}{
		{
			name:      "nil context",
			ctx:       nil,
			version:   UnknownValue,
			buildDate: UnknownValue,
			systemID:  UnknownValue,
		},
		{
			name:      "empty values",
			ctx:       &Context{},
			version:   UnknownValue,
			buildDate: UnknownValue,
			systemID:  UnknownValue,
		},
		{
			name:      "populated",
			ctx:       NewContext("1.0.0-beta.1", "2026-01-01", "desk-mic"),
			version:   "1.0.0-beta.1",
			buildDate: "2026-01-01",
			systemID:  "desk-mic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.GetVersion())
			assert.Equal(t, tt.buildDate, tt.ctx.GetBuildDate())
			assert.Equal(t, tt.systemID, tt.ctx.GetSystemID())
		})
	}
}

func TestNewContext_FallsBackToHostName(t *testing.T) {
	t.Parallel()

	ctx := NewContext("1.0.0", "", "")
	assert.Equal(t, hostSystemID(), ctx.SystemID)
	assert.NotContains(t, ctx.SystemID, ".")
}
