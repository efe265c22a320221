package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Harshitk-cp/synapse/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCognition_Defaults(t *testing.T) {
	for _, key := range []string{
		"MAX_REASONING_DEPTH", "EXPLORATION_THRESHOLD", "FUSION_THRESHOLD", "CONSOLIDATION_INTERVAL",
		"MAX_ACTIVE_TRAJECTORIES", "MAX_RETRIEVED_NODES", "PROBE_DEPTH", "EXPLORATION_ENABLED",
	} {
		t.Setenv(key, "")
	}

	assert.Equal(t, service.DefaultConfig(), Cognition())
}

func TestCognition_FromEnv(t *testing.T) {
	t.Setenv("MAX_REASONING_DEPTH", "7")
	t.Setenv("EXPLORATION_THRESHOLD", "0.3")
	t.Setenv("FUSION_THRESHOLD", "0.9")
	t.Setenv("CONSOLIDATION_INTERVAL", "15m")
	t.Setenv("MAX_ACTIVE_TRAJECTORIES", "2")
	t.Setenv("MAX_RETRIEVED_NODES", "50")
	t.Setenv("PROBE_DEPTH", "1")
	t.Setenv("EXPLORATION_ENABLED", "false")

	cfg := Cognition()
	assert.Equal(t, 7, cfg.MaxReasoningDepth)
	assert.Equal(t, 0.3, cfg.ExplorationThreshold)
	assert.Equal(t, 0.9, cfg.FusionThreshold)
	assert.Equal(t, 15*time.Minute, cfg.ConsolidationInterval)
	assert.Equal(t, 2, cfg.MaxActiveTrajectories)
	assert.Equal(t, 50, cfg.MaxRetrievedNodes)
	assert.Equal(t, 1, cfg.ProbeDepth)
	assert.False(t, cfg.ExplorationEnabled)
	assert.NoError(t, cfg.Validate())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("EXPLORATION_THRESHOLD", "1.5")
	t.Setenv("PROBE_DEPTH", "-2")
	t.Setenv("QUERY_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_RPS", "0")

	assert.Equal(t, service.DefaultExplorationThreshold, ExplorationThreshold())
	assert.Equal(t, service.DefaultProbeDepth, ProbeDepth())
	assert.Equal(t, 60*time.Second, QueryTimeout())
	assert.Equal(t, 100.0, RateLimitRPS())
}

func TestLLMAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "oa")
	t.Setenv("ANTHROPIC_API_KEY", "an")

	t.Setenv("LLM_PROVIDER", "anthropic")
	assert.Equal(t, "an", LLMAPIKey())

	t.Setenv("LLM_PROVIDER", "")
	assert.Equal(t, "openai", LLMProvider())
	assert.Equal(t, "oa", LLMAPIKey())

	t.Setenv("EMBEDDING_PROVIDER", "none")
	assert.Empty(t, EmbeddingAPIKey())
}

func TestLoad_SecretSidecar(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("SYNAPSE_TEST_PORT_KEY=from-env\n"), 0o600))
	require.NoError(t, os.WriteFile(envFile+".secret", []byte("SYNAPSE_TEST_SECRET=shh\n"), 0o600))

	t.Setenv("SYNAPSE_ENV", envFile)
	t.Setenv("SYNAPSE_TEST_PORT_KEY", "")
	t.Setenv("SYNAPSE_TEST_SECRET", "")
	require.NoError(t, os.Unsetenv("SYNAPSE_TEST_PORT_KEY"))
	require.NoError(t, os.Unsetenv("SYNAPSE_TEST_SECRET"))

	require.NoError(t, Load())
	assert.Equal(t, "from-env", os.Getenv("SYNAPSE_TEST_PORT_KEY"))
	assert.Equal(t, "shh", os.Getenv("SYNAPSE_TEST_SECRET"))
}
