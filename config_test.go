package testexec

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-testexec/filters"
	"github.com/ethereum-optimism/infra/op-testexec/flags"
	"github.com/ethereum-optimism/infra/op-testexec/types"
)

func runConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var (
		cfg *Config
		err error
	)
	app := &cli.App{
		Flags: flags.Flags,
		Action: func(ctx *cli.Context) error {
			cfg, err = NewConfig(ctx, log.NewLogger(log.DiscardHandler()))
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"op-testexec"}, args...)))
	return cfg, err
}

func TestNewConfig(t *testing.T) {
	dir := t.TempDir()
	plan := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(plan, []byte("version: \"1.0\"\n"), 0o644))

	cfg, err := runConfig(t, "--plan", plan, "--select", "Root/**", "--category", "smoke", "--concurrency", "3")
	require.NoError(t, err)
	assert.Equal(t, plan, cfg.PlanFile)
	assert.Equal(t, dir, cfg.WorkDir, "work dir defaults to the plan directory")
	assert.Equal(t, []string{"Root/**"}, cfg.Select)
	assert.Equal(t, []string{"smoke"}, cfg.Categories)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.True(t, cfg.RunOnce)

	cfg, err = runConfig(t, "--plan", plan, "--run-interval", "1m", "--work-dir", "/tmp")
	require.NoError(t, err)
	assert.False(t, cfg.RunOnce)
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, "/tmp", cfg.WorkDir)
}

func TestNewConfigErrors(t *testing.T) {
	_, err := runConfig(t, "--plan", "plan.yaml", "--concurrency", "-1")
	assert.Error(t, err)

	_, err = runConfig(t, "--plan", "plan.yaml", "--where", "name ==")
	assert.Error(t, err)

	_, err = runConfig(t, "--plan", "plan.yaml", "--select", "Root/[")
	assert.Error(t, err)
}

func TestConfigFilter(t *testing.T) {
	smoke := &types.Test{ID: "a", HierarchyPath: []string{"Root", "A"}, Categories: []string{"smoke"}}
	other := &types.Test{ID: "b", HierarchyPath: []string{"Root", "B"}}

	f, err := (&Config{}).Filter()
	require.NoError(t, err)
	assert.True(t, filters.IsEmpty(f))

	f, err = (&Config{Categories: []string{"smoke"}}).Filter()
	require.NoError(t, err)
	assert.True(t, f.Pass(smoke))
	assert.False(t, f.Pass(other))

	f, err = (&Config{Select: []string{"Root/*"}, Where: `id == "b"`}).Filter()
	require.NoError(t, err)
	assert.False(t, f.Pass(smoke))
	assert.True(t, f.Pass(other))
}
