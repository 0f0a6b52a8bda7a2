package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []string{"LABEL", "ROWS"}, [][]string{
		{"Person", Count(1200)},
		{"HAS_NAME", Count(3)},
	}))
	out := buf.String()
	assert.Contains(t, out, "LABEL")
	assert.Contains(t, out, "Person")
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "HAS_NAME")
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "1,234,567", Count(1234567))
	assert.Equal(t, "0", Count(0))
	assert.Equal(t, "-", Status(""))
	assert.Contains(t, Status("success"), "success")
	assert.Equal(t, "never", Ago(time.Time{}))
	assert.Contains(t, Ago(time.Now().Add(-3*time.Hour)), "hours ago")
}

func TestShouldUseColor(t *testing.T) {
	t.Setenv("CLICOLOR", "")
	t.Setenv("CLICOLOR_FORCE", "")
	t.Setenv("NO_COLOR", "1")
	assert.False(t, ShouldUseColor())

	t.Setenv("NO_COLOR", "")
	t.Setenv("CLICOLOR_FORCE", "1")
	assert.True(t, ShouldUseColor())
}
