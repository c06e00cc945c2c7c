package version

import (
	"bytes"
	"testing"

	"github.com/bygga/bygga/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCmdVersion(t *testing.T) {
	cmd := NewCmdVersion()

	assert.Equal(t, "version", cmd.Use)
	assert.Equal(t, "Show version information", cmd.Short)
	assert.Contains(t, cmd.Long, "Display version information for bygga")
	assert.NotNil(t, cmd.RunE)
	assert.Empty(t, cmd.Flags().FlagUsages())
	assert.Empty(t, cmd.Commands())
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runVersion(&out))
	assert.Equal(t, app.Version+"\n", out.String())
	assert.Equal(t, "dev", app.Version)
}
