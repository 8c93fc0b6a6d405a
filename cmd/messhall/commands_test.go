package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		dsn, envFile = "", ".env"
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "messhall dev")
}

func TestMigrateDownRejectsBadSteps(t *testing.T) {
	_, err := execute(t, "migrate", "down", "zero", "--dsn", "postgres://unused")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive integer")
}

func TestMigrateRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := execute(t, "migrate", "version", "--env-file", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
