package cmd_test

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arrower/api/cmd"
)

func TestReadBuildInfo(t *testing.T) {
	t.Parallel()

	build := cmd.ReadBuildInfo()

	// test binaries carry no vcs settings
	assert.Equal(t, "@latest", build.Revision)
	assert.NotEmpty(t, build.Time)
	assert.Equal(t, runtime.Version(), build.GoVersion)
}

func TestVersion(t *testing.T) {
	t.Parallel()

	t.Run("with name", func(t *testing.T) {
		t.Parallel()

		output, err := cmd.TestExecute(t, cmd.Version("api"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(output, "api version: @latest from "))
		assert.Contains(t, output, runtime.Version())
	})

	t.Run("without name", func(t *testing.T) {
		t.Parallel()

		output, err := cmd.TestExecute(t, cmd.Version(" "))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(output, "version: "))

		output, err = cmd.TestExecute(t, cmd.Version(""), "-h")
		require.NoError(t, err)
		assert.Contains(t, output, "Print version")
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		output, err := cmd.TestExecute(t, cmd.Version("api"), "--json")
		require.NoError(t, err)

		var build cmd.BuildInfo
		require.NoError(t, json.Unmarshal([]byte(output), &build))
		assert.Equal(t, runtime.Version(), build.GoVersion)
	})

	t.Run("no arguments", func(t *testing.T) {
		t.Parallel()

		output, err := cmd.TestExecute(t, cmd.Version(""), "sub-command")
		assert.Error(t, err)
		assert.Contains(t, output, "unknown command")
	})
}
