package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("should register run and serve subcommands", func(t *testing.T) {
		names := map[string]bool{}
		for _, cmd := range GetRootCmd().Commands() {
			names[cmd.Name()] = true
		}
		assert.True(t, names["run"])
		assert.True(t, names["serve"])
	})

	t.Run("should expose global flags", func(t *testing.T) {
		flags := GetRootCmd().PersistentFlags()
		require.NotNil(t, flags.Lookup("config"))
		require.NotNil(t, flags.Lookup("log-level"))
	})

	t.Run("should report a version", func(t *testing.T) {
		assert.NotEmpty(t, GetVersion())
	})
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "one", firstLine("one\ntwo"))
	assert.Equal(t, "plain", firstLine("plain"))
	assert.Equal(t, "", firstLine(""))
}
