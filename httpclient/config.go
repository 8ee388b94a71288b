/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package httpclient

import (
	"errors"
	"fmt"
	"time"

	"github.com/apifetch/go-apifetch/config"
	"github.com/apifetch/go-apifetch/ratelimit"
	"github.com/apifetch/go-apifetch/retry"
)

const (
	// DefaultClientWaitTimeout is a default timeout for a client to wait for a request.
	DefaultClientWaitTimeout = 10 * time.Second

	// RetryPolicyExponential is a policy for exponential retries.
	RetryPolicyExponential = "exponential"

	// RetryPolicyConstant is a policy for constant retries.
	RetryPolicyConstant = "constant"

	// RateLimitAlgGCRA selects the GCRA rate limiting algorithm.
	RateLimitAlgGCRA = "gcra"

	// RateLimitAlgSlidingWindow selects the sliding window rate limiting algorithm.
	RateLimitAlgSlidingWindow = "slidingWindow"

	// RateLimitAlgTokenBucket selects the token bucket rate limiting algorithm.
	RateLimitAlgTokenBucket = "tokenBucket"
)

const (
	// configuration properties
	cfgKeyTimeout                            = "timeout"
	cfgKeyAttemptTimeout                     = "attemptTimeout"
	cfgKeyRetriesEnabled                     = "retries.enabled"
	cfgKeyRetriesMax                         = "retries.maxAttempts"
	cfgKeyRetriesPolicyStrategy              = "retries.policy.strategy"
	cfgKeyRetriesPolicyExponentialBaseDelay  = "retries.policy.exponentialBackoffBaseDelay"
	cfgKeyRetriesPolicyExponentialMaxDelay   = "retries.policy.exponentialBackoffMaxDelay"
	cfgKeyRetriesPolicyExponentialJitter     = "retries.policy.exponentialBackoffJitterFraction"
	cfgKeyRetriesPolicyConstantInterval      = "retries.policy.constantBackoffInterval"
	cfgKeyRateLimitsEnabled                  = "rateLimits.enabled"
	cfgKeyRateLimitsAlgorithm                = "rateLimits.algorithm"
	cfgKeyRateLimitsLimit                    = "rateLimits.limit"
	cfgKeyRateLimitsPer                      = "rateLimits.per"
	cfgKeyRateLimitsBurst                    = "rateLimits.burst"
	cfgKeyRateLimitsMaxKeys                  = "rateLimits.maxKeys"
	cfgKeyRateLimitsRules                    = "rateLimits.rules"
	cfgKeyLoggerEnabled                      = "logger.enabled"
	cfgKeyLoggerMode                         = "logger.mode"
	cfgKeyLoggerSlowRequestThreshold         = "logger.slowRequestThreshold"
	cfgKeyLoggerDumpRequests                 = "logger.dumpRequests"
	cfgKeyLoggerDumpMaxBodySize              = "logger.dumpMaxBodySize"
	cfgKeyMetricsEnabled                     = "metrics.enabled"
)

var availableRateLimitAlgs = []string{RateLimitAlgGCRA, RateLimitAlgSlidingWindow, RateLimitAlgTokenBucket}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// RateLimitRuleConfig binds a rate to the hosts matching a glob pattern.
type RateLimitRuleConfig struct {
	// Pattern is a glob pattern for the rate limiting key, e.g. "*.example.com".
	Pattern string `mapstructure:"pattern"`

	// Limit is the maximum number of requests per "per" interval.
	Limit int `mapstructure:"limit"`

	// Per is the interval of the limit. One second is used if omitted.
	Per time.Duration `mapstructure:"per"`

	// Burst allows temporary spikes in request rate.
	Burst int `mapstructure:"burst"`
}

// RateLimitConfig represents configuration options for HTTP client rate limits.
type RateLimitConfig struct {
	// Enabled is a flag that enables rate limiting.
	Enabled bool `mapstructure:"enabled"`

	// Algorithm is a rate limiting algorithm: [gcra, slidingWindow, tokenBucket].
	Algorithm string `mapstructure:"algorithm"`

	// Limit is the maximum number of requests per "per" interval.
	Limit int `mapstructure:"limit"`

	// Per is the interval of the limit. One second is used if omitted.
	Per time.Duration `mapstructure:"per"`

	// Burst allows temporary spikes in request rate.
	Burst int `mapstructure:"burst"`

	// MaxKeys bounds the per-key limiter state. 0 means a single state shared by all keys.
	MaxKeys int `mapstructure:"maxKeys"`

	// Rules are per-host overrides checked in order; the first matching pattern wins,
	// keys without a match use the client-wide limit above.
	Rules []RateLimitRuleConfig `mapstructure:"rules"`
}

// Set is part of config interface implementation.
func (c *RateLimitConfig) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	if c.Algorithm, err = dp.GetStringFromSet(cfgKeyRateLimitsAlgorithm, availableRateLimitAlgs, false); err != nil {
		return err
	}

	if c.Limit, err = dp.GetInt(cfgKeyRateLimitsLimit); err != nil {
		return err
	}
	if c.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, errors.New("must be positive"))
	}

	if c.Per, err = dp.GetDuration(cfgKeyRateLimitsPer); err != nil {
		return err
	}
	if c.Per < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsPer, errors.New("must be positive"))
	}
	if c.Per == 0 {
		c.Per = time.Second
	}

	if c.Burst, err = dp.GetInt(cfgKeyRateLimitsBurst); err != nil {
		return err
	}
	if c.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, errors.New("must not be negative"))
	}

	if c.MaxKeys, err = dp.GetInt(cfgKeyRateLimitsMaxKeys); err != nil {
		return err
	}
	if c.MaxKeys < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsMaxKeys, errors.New("must not be negative"))
	}

	if err = dp.UnmarshalKey(cfgKeyRateLimitsRules, &c.Rules); err != nil {
		return err
	}
	for i := range c.Rules {
		if c.Rules[i].Pattern == "" {
			return dp.WrapKeyErr(cfgKeyRateLimitsRules, fmt.Errorf("rule #%d: pattern cannot be empty", i+1))
		}
		if c.Rules[i].Limit <= 0 {
			return dp.WrapKeyErr(cfgKeyRateLimitsRules, fmt.Errorf("rule #%d: limit must be positive", i+1))
		}
		if c.Rules[i].Per == 0 {
			c.Rules[i].Per = time.Second
		}
	}
	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *RateLimitConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRateLimitsAlgorithm, RateLimitAlgGCRA)
}

// MakeLimiter builds a rate limiter according to the configuration.
func (c *RateLimitConfig) MakeLimiter() (ratelimit.Limiter, error) {
	defaultLimiter, err := makeAlgLimiter(c.Algorithm, ratelimit.Rate{Count: c.Limit, Duration: c.Per}, c.Burst, c.MaxKeys)
	if err != nil {
		return nil, err
	}
	if len(c.Rules) == 0 {
		return defaultLimiter, nil
	}

	rules := make([]ratelimit.Rule, 0, len(c.Rules))
	for _, ruleCfg := range c.Rules {
		ruleLimiter, ruleErr := makeAlgLimiter(
			c.Algorithm, ratelimit.Rate{Count: ruleCfg.Limit, Duration: ruleCfg.Per}, ruleCfg.Burst, c.MaxKeys)
		if ruleErr != nil {
			return nil, fmt.Errorf("rule %q: %w", ruleCfg.Pattern, ruleErr)
		}
		rules = append(rules, ratelimit.Rule{Pattern: ruleCfg.Pattern, Limiter: ruleLimiter})
	}
	return ratelimit.NewRuleBasedLimiter(rules, defaultLimiter)
}

func makeAlgLimiter(alg string, maxRate ratelimit.Rate, burst, maxKeys int) (ratelimit.Limiter, error) {
	switch alg {
	case RateLimitAlgGCRA, "":
		return ratelimit.NewGCRALimiter(maxRate, burst, maxKeys)
	case RateLimitAlgSlidingWindow:
		return ratelimit.NewSlidingWindowLimiter(maxRate, maxKeys)
	case RateLimitAlgTokenBucket:
		return ratelimit.NewTokenBucketLimiter(maxRate, burst, maxKeys)
	}
	return nil, fmt.Errorf("unknown rate limiting algorithm %q", alg)
}

// PolicyConfig represents configuration options for the retry backoff policy.
type PolicyConfig struct {
	// Strategy is a strategy for retry policy: [exponential, constant].
	Strategy string `mapstructure:"strategy"`

	// ExponentialBackoffBaseDelay is the delay before the first retry;
	// each following delay is twice the previous one, up to ExponentialBackoffMaxDelay.
	ExponentialBackoffBaseDelay time.Duration `mapstructure:"exponentialBackoffBaseDelay"`

	// ExponentialBackoffMaxDelay caps the exponential growth of the delays.
	ExponentialBackoffMaxDelay time.Duration `mapstructure:"exponentialBackoffMaxDelay"`

	// ExponentialBackoffJitterFraction adds a random fraction of each delay on top of it, in [0, 1].
	ExponentialBackoffJitterFraction float64 `mapstructure:"exponentialBackoffJitterFraction"`

	// ConstantBackoffInterval is the interval for constant backoff.
	ConstantBackoffInterval time.Duration `mapstructure:"constantBackoffInterval"`
}

// Set is part of config interface implementation.
func (c *PolicyConfig) Set(dp config.DataProvider) (err error) {
	if c.Strategy, err = dp.GetString(cfgKeyRetriesPolicyStrategy); err != nil {
		return err
	}
	if c.Strategy != "" && c.Strategy != RetryPolicyExponential && c.Strategy != RetryPolicyConstant {
		return dp.WrapKeyErr(cfgKeyRetriesPolicyStrategy,
			errors.New("must be one of: [exponential, constant]"))
	}

	switch c.Strategy {
	case RetryPolicyExponential:
		if c.ExponentialBackoffBaseDelay, err = dp.GetDuration(cfgKeyRetriesPolicyExponentialBaseDelay); err != nil {
			return err
		}
		if c.ExponentialBackoffBaseDelay <= 0 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialBaseDelay, errors.New("must be positive"))
		}

		if c.ExponentialBackoffMaxDelay, err = dp.GetDuration(cfgKeyRetriesPolicyExponentialMaxDelay); err != nil {
			return err
		}
		if c.ExponentialBackoffMaxDelay < c.ExponentialBackoffBaseDelay {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialMaxDelay,
				errors.New("must not be less than the base delay"))
		}

		if c.ExponentialBackoffJitterFraction, err = dp.GetFloat64(cfgKeyRetriesPolicyExponentialJitter); err != nil {
			return err
		}
		if c.ExponentialBackoffJitterFraction < 0 || c.ExponentialBackoffJitterFraction > 1 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialJitter, errors.New("must be in [0, 1]"))
		}

	case RetryPolicyConstant:
		if c.ConstantBackoffInterval, err = dp.GetDuration(cfgKeyRetriesPolicyConstantInterval); err != nil {
			return err
		}
		if c.ConstantBackoffInterval < 0 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyConstantInterval, errors.New("must be positive"))
		}
	}

	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *PolicyConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRetriesPolicyExponentialBaseDelay, DefaultBackoffBaseDelay.String())
	dp.SetDefault(cfgKeyRetriesPolicyExponentialMaxDelay, DefaultBackoffMaxDelay.String())
	dp.SetDefault(cfgKeyRetriesPolicyExponentialJitter, DefaultBackoffJitterFraction)
}

// RetriesConfig represents configuration options for HTTP client retries policy.
type RetriesConfig struct {
	// Enabled is a flag that enables retries.
	Enabled bool `mapstructure:"enabled"`

	// MaxAttempts is the maximum number of attempts to retry the request.
	MaxAttempts int `mapstructure:"maxAttempts"`

	// Policy of a retry: [exponential, constant]. default is exponential.
	Policy PolicyConfig `mapstructure:"policy"`
}

// GetPolicy returns a retry policy based on strategy or nil if none is provided.
func (c *RetriesConfig) GetPolicy() (retry.Policy, error) {
	switch c.Policy.Strategy {
	case RetryPolicyExponential:
		policy, err := retry.NewExponentialBackoffPolicy(
			c.Policy.ExponentialBackoffBaseDelay,
			c.Policy.ExponentialBackoffMaxDelay,
			c.Policy.ExponentialBackoffJitterFraction,
			0)
		if err != nil {
			return nil, err
		}
		return policy, nil
	case RetryPolicyConstant:
		return retry.NewConstantBackoffPolicy(c.Policy.ConstantBackoffInterval, 0), nil
	}
	return nil, nil
}

// Set is part of config interface implementation.
func (c *RetriesConfig) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyRetriesEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	if c.MaxAttempts, err = dp.GetInt(cfgKeyRetriesMax); err != nil {
		return err
	}
	if c.MaxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesMax, errors.New("must be positive"))
	}

	return c.Policy.Set(dp)
}

// SetProviderDefaults is part of config interface implementation.
func (c *RetriesConfig) SetProviderDefaults(dp config.DataProvider) {
	c.Policy.SetProviderDefaults(dp)
}

// LoggerConfig represents configuration options for HTTP client logs.
type LoggerConfig struct {
	// Enabled is a flag that enables logging.
	Enabled bool `mapstructure:"enabled"`

	// Mode of logging: [none, all, failed].
	Mode string `mapstructure:"mode"`

	// SlowRequestThreshold is a threshold for slow requests.
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold"`

	// DumpRequests enables dumping of raw requests and responses into the log.
	// Secrets in the dumps are masked.
	DumpRequests bool `mapstructure:"dumpRequests"`

	// DumpMaxBodySize limits how much of a dumped body ends up in the log.
	DumpMaxBodySize config.ByteSize `mapstructure:"dumpMaxBodySize"`
}

// Set is part of config interface implementation.
func (c *LoggerConfig) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyLoggerEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	if c.Mode, err = dp.GetString(cfgKeyLoggerMode); err != nil {
		return err
	}
	if !LoggingMode(c.Mode).IsValid() {
		return dp.WrapKeyErr(cfgKeyLoggerMode, errors.New("must be one of: [none, all, failed]"))
	}

	if c.SlowRequestThreshold, err = dp.GetDuration(cfgKeyLoggerSlowRequestThreshold); err != nil {
		return err
	}
	if c.SlowRequestThreshold < 0 {
		return dp.WrapKeyErr(cfgKeyLoggerSlowRequestThreshold, errors.New("can not be negative"))
	}

	if c.DumpRequests, err = dp.GetBool(cfgKeyLoggerDumpRequests); err != nil {
		return err
	}

	if c.DumpMaxBodySize, err = dp.GetByteSize(cfgKeyLoggerDumpMaxBodySize); err != nil {
		return err
	}
	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *LoggerConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyLoggerMode, string(LoggingModeFailed))
	dp.SetDefault(cfgKeyLoggerDumpMaxBodySize, DefaultDumpMaxBodySize)
}

// TransportOpts returns transport options.
func (c *LoggerConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{
		Mode:                 LoggingMode(c.Mode),
		SlowRequestThreshold: c.SlowRequestThreshold,
	}
}

// MetricsConfig represents configuration options for HTTP client metrics.
type MetricsConfig struct {
	// Enabled is a flag that enables metrics.
	Enabled bool `mapstructure:"enabled"`
}

// Set is part of config interface implementation.
func (c *MetricsConfig) Set(dp config.DataProvider) (err error) {
	c.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled)
	return err
}

// SetProviderDefaults is part of config interface implementation.
func (c *MetricsConfig) SetProviderDefaults(_ config.DataProvider) {}

// Config represents options for HTTP client configuration.
type Config struct {
	// Retries is a configuration for HTTP client retries policy.
	Retries RetriesConfig `mapstructure:"retries"`

	// RateLimits is a configuration for HTTP client rate limits.
	RateLimits RateLimitConfig `mapstructure:"rateLimits"`

	// Logger is a configuration for HTTP client logs.
	Logger LoggerConfig `mapstructure:"logger"`

	// Metrics is a configuration for HTTP client metrics.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Timeout bounds a whole logical call including all retries and waits.
	Timeout time.Duration `mapstructure:"timeout"`

	// AttemptTimeout bounds a single request attempt. 0 means attempts
	// are bounded only by Timeout.
	AttemptTimeout time.Duration `mapstructure:"attemptTimeout"`

	// keyPrefix is a prefix for configuration parameters.
	keyPrefix string
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix("")
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// Set is part of config interface implementation.
// The data provider is already prefixed by the loader when KeyPrefix is not empty.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Timeout, err = dp.GetDuration(cfgKeyTimeout); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, errors.New("must be positive"))
	}

	if c.AttemptTimeout, err = dp.GetDuration(cfgKeyAttemptTimeout); err != nil {
		return err
	}
	if c.AttemptTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyAttemptTimeout, errors.New("must be positive"))
	}

	if err = c.Retries.Set(dp); err != nil {
		return err
	}
	if err = c.RateLimits.Set(dp); err != nil {
		return err
	}
	if err = c.Logger.Set(dp); err != nil {
		return err
	}
	return c.Metrics.Set(dp)
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeout, DefaultClientWaitTimeout.String())
	c.Retries.SetProviderDefaults(dp)
	c.RateLimits.SetProviderDefaults(dp)
	c.Logger.SetProviderDefaults(dp)
	c.Metrics.SetProviderDefaults(dp)
}
