package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resellboost/internal/economy"
)

const testConfigDir = "../../internal/config/testdata"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func absConfigDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.Abs(testConfigDir)
	require.NoError(t, err)
	return dir
}

func TestCheckConfig(t *testing.T) {
	dir := absConfigDir(t)
	out, err := execute(t, "check-config", "--config-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "products:     4")
	assert.Contains(t, out, "achievements: 3")
	assert.Contains(t, out, "categories:   3")
}

func TestCheckConfigMissingDir(t *testing.T) {
	_, err := execute(t, "check-config", "--config-dir", filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestConfigDirFromEnv(t *testing.T) {
	t.Setenv("RESELLBOOST_CONFIG_DIR", absConfigDir(t))
	out, err := execute(t, "check-config")
	require.NoError(t, err)
	assert.Contains(t, out, "products:     4")
}

func TestSimulate(t *testing.T) {
	dir := absConfigDir(t)
	out, err := execute(t, "simulate", "--config-dir", dir, "--sales", "100", "--level", "1")
	require.NoError(t, err)

	var got economy.SimResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Positive(t, got.Rate)
	assert.InDelta(t, 100*got.Rate, got.Credits, 1e-9)
}

func TestRunRequiresToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	_, err := execute(t, "run", "--config-dir", absConfigDir(t))
	assert.EqualError(t, err, "DISCORD_TOKEN is not set")
}

func TestEnvPort(t *testing.T) {
	t.Setenv("PORT", "")
	port, err := envPort()
	require.NoError(t, err)
	assert.Equal(t, 8080, port)

	t.Setenv("PORT", "9000")
	port, err = envPort()
	require.NoError(t, err)
	assert.Equal(t, 9000, port)

	t.Setenv("PORT", "http")
	_, err = envPort()
	assert.Error(t, err)
}

func TestMigrateRequiresMongo(t *testing.T) {
	t.Setenv("MONGO_URI", "")
	_, err := execute(t, "migrate")
	assert.EqualError(t, err, "MONGO_URI is not set")
}
