package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ctx     *Context
		version string
		date    string
	}{
		{"nil context", nil, UnknownValue, UnknownValue},
		{"empty fields", NewContext("", ""), UnknownValue, UnknownValue},
		{"set", NewContext("v1.2.0", "2026-10-01"), "v1.2.0", "2026-10-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.GetVersion())
			assert.Equal(t, tt.date, tt.ctx.GetBuildDate())
		})
	}
}

func TestContextString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "v1.2.0 (built 2026-10-01)", NewContext("v1.2.0", "2026-10-01").String())
	assert.Equal(t, "unknown (built unknown)", (*Context)(nil).String())
}
