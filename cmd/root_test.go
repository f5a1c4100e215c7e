package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"run", "classify", "migrate", "status", "fetch", "export"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "ownership-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"method", "measure", "out"} {
		flag := runCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "run command should have --%s flag", name)
		assert.Empty(t, flag.DefValue)
	}
}

func TestStatusCommand_Flags(t *testing.T) {
	flag := statusCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)

	require.NotNil(t, statusCmd.Flags().Lookup("run"))
	require.NotNil(t, statusCmd.Flags().Lookup("summary"))
	require.NotNil(t, statusCmd.Flags().Lookup("check"))
	require.NotNil(t, statusCmd.Flags().Lookup("watch"))
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("out")
	require.NotNil(t, flag)
	assert.Equal(t, "ownership.csv", flag.DefValue)

	q := exportCmd.Flags().Lookup("quarter")
	require.NotNil(t, q)
	assert.Contains(t, q.Annotations, "cobra_annotation_bash_completion_one_required_flag")
}

func TestClassifyCommand_Flags(t *testing.T) {
	flag := classifyCmd.Flags().Lookup("show-excluded")
	require.NotNil(t, flag)
	assert.Equal(t, "20", flag.DefValue)
}
