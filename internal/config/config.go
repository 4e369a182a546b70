package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Harshitk-cp/bayesd/internal/domain"
)

// Load reads the .env file specified by BAYESD_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("BAYESD_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

// DatabaseURL is optional. Without it belief history lives only in memory.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// RedisURL is optional. Without it inference responses are not cached.
func RedisURL() string {
	return os.Getenv("REDIS_URL")
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

// ModelCatalogPath points to a YAML model catalog loaded at startup. Empty disables it.
func ModelCatalogPath() string {
	return os.Getenv("MODEL_CATALOG_PATH")
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// RequestTimeout bounds a single reasoning request. Defaults to 30s.
func RequestTimeout() time.Duration {
	return seconds("REQUEST_TIMEOUT_SECONDS", 30)
}

// CacheTTL is how long cached inference responses live. Defaults to 5m.
func CacheTTL() time.Duration {
	return seconds("CACHE_TTL_SECONDS", 300)
}

// SubjectIdleTTL is how long an untouched belief subject is kept in memory. Defaults to 24h.
func SubjectIdleTTL() time.Duration {
	return seconds("SUBJECT_IDLE_TTL_SECONDS", 86400)
}

// HistoryRetention is how long persisted belief updates are kept. Zero keeps them forever.
func HistoryRetention() time.Duration {
	return seconds("HISTORY_RETENTION_SECONDS", 0)
}

// APIKeys returns the comma-separated keys accepted by the API. An empty list
// disables authentication.
func APIKeys() []string {
	var keys []string
	for _, k := range strings.Split(os.Getenv("API_KEYS"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func BayesianDefaults() domain.BayesianConfig {
	c := domain.DefaultBayesianConfig()
	if v := os.Getenv("BAYES_MODEL_TYPE"); domain.ValidModelType(v) {
		c.ModelType = domain.ModelType(v)
	}
	c.ConfidenceThreshold = floatEnv("BAYES_CONFIDENCE_THRESHOLD", c.ConfidenceThreshold)
	c.MaxIterations = intEnv("BAYES_MAX_ITERATIONS", c.MaxIterations)
	return c
}

func BeliefDefaults() domain.BeliefUpdaterConfig {
	c := domain.DefaultBeliefUpdaterConfig()
	if v := os.Getenv("BELIEF_STRATEGY"); domain.ValidUpdateStrategy(v) {
		c.DefaultStrategy = domain.UpdateStrategy(v)
	}
	c.ConvergenceThreshold = floatEnv("BELIEF_CONVERGENCE_THRESHOLD", c.ConvergenceThreshold)
	c.StabilityWindow = intEnv("BELIEF_STABILITY_WINDOW", c.StabilityWindow)
	c.DecayFactor = floatEnv("BELIEF_DECAY_FACTOR", c.DecayFactor)
	c.WindowSize = intEnv("BELIEF_WINDOW_SIZE", c.WindowSize)
	c.MaxHistory = intEnv("BELIEF_MAX_HISTORY", c.MaxHistory)
	return c.WithDefaults()
}

func UncertaintyDefaults() domain.UncertaintyQuantifierConfig {
	c := domain.DefaultUncertaintyQuantifierConfig()
	if v := os.Getenv("UNCERTAINTY_METHOD"); v != "" {
		c.DefaultMethod = domain.QuantificationMethod(v)
	}
	if v := os.Getenv("UNCERTAINTY_LEVELS"); v != "" {
		var levels []float64
		for _, s := range strings.Split(v, ",") {
			l, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err == nil && l > 0 && l < 1 {
				levels = append(levels, l)
			}
		}
		if len(levels) > 0 {
			c.ConfidenceLevels = levels
		}
	}
	c.MonteCarloSamples = intEnv("UNCERTAINTY_SAMPLES", c.MonteCarloSamples)
	c.PriorStrength = floatEnv("UNCERTAINTY_PRIOR_STRENGTH", c.PriorStrength)
	c.Seed = int64(intEnv("UNCERTAINTY_SEED", int(c.Seed)))
	c.Workers = intEnv("UNCERTAINTY_WORKERS", c.Workers)
	return c
}

func DecisionDefaults() domain.DecisionTreeConfig {
	c := domain.DefaultDecisionTreeConfig()
	c.MaxDepth = intEnv("DECISION_MAX_DEPTH", c.MaxDepth)
	c.MaxBranchesPerNode = intEnv("DECISION_MAX_BRANCHES", c.MaxBranchesPerNode)
	if v := os.Getenv("DECISION_CRITERION"); v != "" {
		c.Criterion = domain.Criterion(v)
	}
	if v := os.Getenv("DECISION_CHANCE_MODE"); v != "" {
		c.ChanceMode = domain.ChanceMode(v)
	}
	c.RiskAversion = floatEnv("DECISION_RISK_AVERSION", c.RiskAversion)
	c.Seed = int64(intEnv("DECISION_SEED", int(c.Seed)))
	return c
}

func seconds(key string, def int) time.Duration {
	return time.Duration(intEnv(key, def)) * time.Second
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func floatEnv(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
