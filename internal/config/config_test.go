package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/bayesd/internal/domain"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{"SERVER_PORT", "REQUEST_TIMEOUT_SECONDS", "API_KEYS", "BAYES_MAX_ITERATIONS", "UNCERTAINTY_LEVELS"} {
		t.Setenv(k, "")
	}

	assert.Equal(t, 8080, ServerPort())
	assert.Equal(t, ":8080", ServerAddr())
	assert.Equal(t, 30*time.Second, RequestTimeout())
	assert.Empty(t, APIKeys())
	assert.Equal(t, domain.DefaultBayesianConfig(), BayesianDefaults())
	assert.Equal(t, []float64{0.90, 0.95, 0.99}, UncertaintyDefaults().ConfidenceLevels)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "5")
	t.Setenv("API_KEYS", " k1, ,k2 ")
	t.Setenv("BAYES_MODEL_TYPE", "markov_chain")
	t.Setenv("BAYES_MAX_ITERATIONS", "50")
	t.Setenv("BELIEF_STRATEGY", "windowed")
	t.Setenv("BELIEF_WINDOW_SIZE", "4")
	t.Setenv("UNCERTAINTY_LEVELS", "0.8,1.5,0.9")
	t.Setenv("DECISION_CRITERION", "risk_adjusted")
	t.Setenv("RATE_LIMIT_RPS", "-3")

	assert.Equal(t, ":9090", ServerAddr())
	assert.Equal(t, 5*time.Second, RequestTimeout())
	assert.Equal(t, []string{"k1", "k2"}, APIKeys())
	assert.Equal(t, domain.ModelMarkovChain, BayesianDefaults().ModelType)
	assert.Equal(t, 50, BayesianDefaults().MaxIterations)
	assert.Equal(t, domain.StrategyWindowed, BeliefDefaults().DefaultStrategy)
	assert.Equal(t, 4, BeliefDefaults().WindowSize)
	assert.Equal(t, []float64{0.8, 0.9}, UncertaintyDefaults().ConfidenceLevels)
	assert.Equal(t, domain.CriterionRiskAdjusted, DecisionDefaults().Criterion)
	assert.Equal(t, float64(100), RateLimitRPS())
}

func TestLoad_EnvFileAndSecret(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(env, []byte("BAYESD_TEST_PLAIN=one\n"), 0o600))
	require.NoError(t, os.WriteFile(env+".secret", []byte("BAYESD_TEST_SECRET=two\n"), 0o600))

	t.Setenv("BAYESD_ENV", env)
	t.Setenv("BAYESD_TEST_PLAIN", "")
	t.Setenv("BAYESD_TEST_SECRET", "")
	os.Unsetenv("BAYESD_TEST_PLAIN")
	os.Unsetenv("BAYESD_TEST_SECRET")

	require.NoError(t, Load())
	assert.Equal(t, "one", os.Getenv("BAYESD_TEST_PLAIN"))
	assert.Equal(t, "two", os.Getenv("BAYESD_TEST_SECRET"))
}
