package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/swapper/service/swap"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr  string
	MetricsAddr string
	LogLevel    string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Solana configuration. One of SolanaRPCURLs is picked per client.
	SolanaRPCURLs    []string
	SolanaCommitment string

	// Aggregator configuration
	JupiterAPIURL    string
	JupiterPriceURL  string
	SlippageBps      int
	WrapAndUnwrapSOL bool

	// Pipeline configuration
	PriorityFeeRate  float64
	ComputeUnitLimit uint32 // 0 leaves the limit instruction out
	SkipPreflight    bool
	MaxRetries       uint

	// Workflow configuration
	SwapTimeout     time.Duration
	SwapMaxAttempts int
}

var validCommitments = map[string]bool{
	"processed": true,
	"confirmed": true,
	"finalized": true,
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// Optional: without it swap events are neither published nor streamed
	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "swapper-swaps")

	// Solana configuration
	cfg.SolanaRPCURLs = splitList(os.Getenv("SOLANA_RPC_URL"))
	if len(cfg.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}
	cfg.SolanaCommitment = getEnvOrDefault("SOLANA_COMMITMENT", "confirmed")
	if !validCommitments[cfg.SolanaCommitment] {
		errs = append(errs, fmt.Errorf("SOLANA_COMMITMENT: unknown commitment %q", cfg.SolanaCommitment))
	}

	// Aggregator configuration
	cfg.JupiterAPIURL = getEnvOrDefault("JUPITER_API_URL", "https://quote-api.jup.ag/v6/")
	cfg.JupiterPriceURL = getEnvOrDefault("JUPITER_PRICE_URL", "https://api.jup.ag/price/v2")

	slippage, err := parseInt("SLIPPAGE_BPS", 50)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SlippageBps = slippage
	}

	wrap, err := parseBool("WRAP_AND_UNWRAP_SOL", true)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.WrapAndUnwrapSOL = wrap
	}

	// Pipeline configuration
	feeRate, err := parseFloat("PRIORITY_FEE_RATE", swap.DefaultPriorityFeeRate)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PriorityFeeRate = feeRate
	}

	cuLimit, err := parseInt("COMPUTE_UNIT_LIMIT", int(swap.DefaultComputeUnitLimit))
	if err != nil {
		errs = append(errs, err)
	} else if cuLimit < 0 || cuLimit > int(^uint32(0)) {
		errs = append(errs, fmt.Errorf("COMPUTE_UNIT_LIMIT: %d out of range", cuLimit))
	} else {
		cfg.ComputeUnitLimit = uint32(cuLimit)
	}

	skip, err := parseBool("SKIP_PREFLIGHT", false)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SkipPreflight = skip
	}

	retries, err := parseInt("MAX_RETRIES", 3)
	if err != nil {
		errs = append(errs, err)
	} else if retries < 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES cannot be negative"))
	} else {
		cfg.MaxRetries = uint(retries)
	}

	// Workflow configuration
	timeout, err := parseDuration("SWAP_TIMEOUT", "60s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SwapTimeout = timeout
	}

	attempts, err := parseInt("SWAP_MAX_ATTEMPTS", 3)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SwapMaxAttempts = attempts
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if len(c.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SolanaRPCURLs is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.JupiterAPIURL == "" {
		errs = append(errs, fmt.Errorf("JupiterAPIURL is required"))
	}

	if _, err := swap.PriorityFeeMicroLamports(c.PriorityFeeRate); err != nil {
		errs = append(errs, fmt.Errorf("PriorityFeeRate: %w", err))
	}

	if c.SlippageBps < 0 || c.SlippageBps > 10_000 {
		errs = append(errs, fmt.Errorf("SlippageBps must be between 0 and 10000"))
	}

	if c.SwapTimeout < time.Second {
		errs = append(errs, fmt.Errorf("SwapTimeout must be at least 1 second"))
	}

	if c.SwapMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("SwapMaxAttempts must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// SwapOptions converts the pipeline settings into per-run options.
func (c *Config) SwapOptions() swap.SwapOptions {
	rate := c.PriorityFeeRate
	opts := swap.SwapOptions{
		PriorityFeeRate: &rate,
		SkipPreflight:   c.SkipPreflight,
		MaxRetries:      c.MaxRetries,
	}
	if c.ComputeUnitLimit > 0 {
		limit := c.ComputeUnitLimit
		opts.ComputeUnitLimit = &limit
	}
	return opts
}

// ErrNoSigningKey is returned when neither SWAP_PRIVATE_KEY nor
// SWAP_KEYPAIR_PATH is set.
var ErrNoSigningKey = errors.New("SWAP_PRIVATE_KEY or SWAP_KEYPAIR_PATH is required")

// LoadSigningKey loads the payer key from SWAP_PRIVATE_KEY (base58) or,
// failing that, from the solana-keygen file at SWAP_KEYPAIR_PATH.
func LoadSigningKey() (*swap.SigningKey, error) {
	if encoded := os.Getenv("SWAP_PRIVATE_KEY"); encoded != "" {
		key, err := swap.SigningKeyFromBase58(encoded)
		if err != nil {
			return nil, fmt.Errorf("SWAP_PRIVATE_KEY: %w", err)
		}
		return key, nil
	}
	if path := os.Getenv("SWAP_KEYPAIR_PATH"); path != "" {
		key, err := swap.SigningKeyFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("SWAP_KEYPAIR_PATH: %w", err)
		}
		return key, nil
	}
	return nil, ErrNoSigningKey
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList splits a comma separated value, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
