package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/necessist/necessist/internal/model"
)

func TestParseWarningFlagsSplitsAllFromNames(t *testing.T) {
	allow, deny, denyAll, err := parseWarningFlags([]string{"stale-test-map"}, []string{"all", "no-git-remote"})
	require.NoError(t, err)

	assert.True(t, denyAll)
	require.Len(t, deny, 1)
	assert.Equal(t, "no-git-remote", string(deny[0]))
	require.Len(t, allow, 1)
	assert.Equal(t, "stale-test-map", string(allow[0]))
}

func TestParseWarningFlagsRejectsAllowAll(t *testing.T) {
	_, _, _, err := parseWarningFlags([]string{"all"}, nil)
	require.Error(t, err)
}

func TestResolveBackendExplicitFramework(t *testing.T) {
	frameworkFlag = string(model.FrameworkGo)
	defer func() { frameworkFlag = "auto" }()

	be, err := resolveBackend(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, model.FrameworkGo, be.Name())
}

func TestResolveBackendUnknownFramework(t *testing.T) {
	frameworkFlag = "cobol"
	defer func() { frameworkFlag = "auto" }()

	_, err := resolveBackend(t.TempDir())
	require.Error(t, err)
}

func TestSplitTrailingArgsWithDash(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}

	require.NoError(t, cmd.ParseFlags([]string{"a_test.go", "--", "-run", "Foo"}))

	testPaths, extraArgs := splitTrailingArgs(cmd, cmd.Flags().Args())

	assert.Equal(t, []string{"a_test.go"}, testPaths)
	assert.Equal(t, []string{"-run", "Foo"}, extraArgs)
}
