package root

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCmdRoot(t *testing.T) {
	cmd := NewCmdRoot()

	assert.Equal(t, "bygga", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotNil(t, cmd.PersistentPreRun)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, expected := range []string{"server", "secret", "task", "version"} {
		assert.Contains(t, names, expected, "Expected subcommand %s not found", expected)
	}
}

func TestNewCmdRootFlags(t *testing.T) {
	cmd := NewCmdRoot()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue)

	logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, logLevelFlag)
	assert.Equal(t, "l", logLevelFlag.Shorthand)

	noColorFlag := cmd.PersistentFlags().Lookup("no-color")
	require.NotNil(t, noColorFlag)
	assert.Equal(t, "", noColorFlag.Shorthand)
}

func TestSubcommandsInheritConfigFlag(t *testing.T) {
	cmd := NewCmdRoot()

	sub, _, err := cmd.Find([]string{"secret", "list"})
	require.NoError(t, err)
	assert.NotNil(t, sub.InheritedFlags().Lookup("config"))
}
