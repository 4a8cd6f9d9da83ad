package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Validate)
	assert.True(t, cfg.Optimize)
	assert.True(t, cfg.Autowire)
	assert.False(t, cfg.GlobalDispatchFirst)
	assert.False(t, cfg.Debugger.Enabled())
	assert.NoError(t, cfg.Check())
}

func TestParse_Section(t *testing.T) {
	cfg, err := Parse([]byte(`
app: ignored
events:
  subscribers:
    - "@article.listener"
    - user.listener
    - article.listener
  optimize: false
  autowire: false
  debugger:
    dispatchTree: true
    events: "1"
  exceptionHandler: "@events.handler"
  globalDispatchFirst: true
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Check())

	assert.Equal(t, []string{"article.listener", "user.listener"}, cfg.Subscribers)
	assert.True(t, cfg.Validate, "unset keys keep their default")
	assert.False(t, cfg.Optimize)
	assert.False(t, cfg.Autowire)
	assert.Equal(t, Debugger{DispatchTree: true, Events: true}, cfg.Debugger)
	assert.Equal(t, "events.handler", cfg.ExceptionHandler)
	assert.True(t, cfg.GlobalDispatchFirst)
}

func TestParse_BareSectionAndBoolDebugger(t *testing.T) {
	cfg, err := Parse([]byte("subscribers: [a]\ndebugger: true\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, cfg.Subscribers)
	assert.Equal(t, debuggerAll(true), cfg.Debugger)
}

func TestParse_InvalidDebugger(t *testing.T) {
	_, err := Parse([]byte("debugger:\n  unknown: true\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("debugger: [1, 2]\n"))
	assert.Error(t, err)
}

func TestCheck_OptimizeRequiresValidate(t *testing.T) {
	cfg := &Config{Optimize: true}
	assert.ErrorIs(t, cfg.Check(), ErrOptimizeWithoutValidate)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yml")
	require.NoError(t, os.WriteFile(path, []byte("events:\n  subscribers: [a]\n"), 0o644))

	t.Setenv("YAO_EVENTS_SUBSCRIBERS", "b,c")
	t.Setenv("YAO_EVENTS_DEBUGGER", "dispatchLog,listeners")
	t.Setenv("YAO_EVENTS_AUTOWIRE", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, cfg.Subscribers)
	assert.Equal(t, Debugger{DispatchLog: true, Listeners: true}, cfg.Debugger)
	assert.False(t, cfg.Autowire)

	_, err = Load(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestFromEnv_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("YAO_EVENTS_OPTIMIZE=false\nYAO_EVENTS_EXCEPTION_HANDLER=@h\n"), 0o644))

	// godotenv does not override variables that are already set
	t.Setenv("YAO_EVENTS_OPTIMIZE", "")
	os.Unsetenv("YAO_EVENTS_OPTIMIZE")
	t.Setenv("YAO_EVENTS_EXCEPTION_HANDLER", "")
	os.Unsetenv("YAO_EVENTS_EXCEPTION_HANDLER")

	cfg, err := FromEnv(envFile, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.False(t, cfg.Optimize)
	assert.True(t, cfg.Validate)
	assert.Equal(t, "h", cfg.ExceptionHandler)
}
