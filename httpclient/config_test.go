/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apifetch/go-apifetch/config"
	"github.com/apifetch/go-apifetch/ratelimit"
	"github.com/apifetch/go-apifetch/retry"
)

func TestConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewReader(nil), config.DataTypeYAML, cfg)
	require.NoError(t, err)

	require.Equal(t, DefaultClientWaitTimeout, cfg.Timeout)
	require.Equal(t, time.Duration(0), cfg.AttemptTimeout)
	require.False(t, cfg.Retries.Enabled)
	require.False(t, cfg.RateLimits.Enabled)
	require.False(t, cfg.Logger.Enabled)
	require.False(t, cfg.Metrics.Enabled)
}

func TestConfigReadFull(t *testing.T) {
	cfgData := bytes.NewBufferString(`
client:
  timeout: 1m
  attemptTimeout: 15s
  retries:
    enabled: true
    maxAttempts: 4
    policy:
      strategy: exponential
      exponentialBackoffBaseDelay: 100ms
      exponentialBackoffMaxDelay: 10s
      exponentialBackoffJitterFraction: 0.5
  rateLimits:
    enabled: true
    algorithm: gcra
    limit: 10
    per: 1s
    burst: 5
    maxKeys: 100
    rules:
      - pattern: "*.slow.example.com"
        limit: 1
        per: 2s
  logger:
    enabled: true
    mode: all
    slowRequestThreshold: 500ms
    dumpRequests: true
    dumpMaxBodySize: 16K
  metrics:
    enabled: true
`)
	cfg := NewConfigWithKeyPrefix("client")
	err := config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg)
	require.NoError(t, err)

	require.Equal(t, time.Minute, cfg.Timeout)
	require.Equal(t, 15*time.Second, cfg.AttemptTimeout)

	require.True(t, cfg.Retries.Enabled)
	require.Equal(t, 4, cfg.Retries.MaxAttempts)
	require.Equal(t, RetryPolicyExponential, cfg.Retries.Policy.Strategy)
	require.Equal(t, 100*time.Millisecond, cfg.Retries.Policy.ExponentialBackoffBaseDelay)
	require.Equal(t, 10*time.Second, cfg.Retries.Policy.ExponentialBackoffMaxDelay)
	require.Equal(t, 0.5, cfg.Retries.Policy.ExponentialBackoffJitterFraction)

	require.True(t, cfg.RateLimits.Enabled)
	require.Equal(t, RateLimitAlgGCRA, cfg.RateLimits.Algorithm)
	require.Equal(t, 10, cfg.RateLimits.Limit)
	require.Equal(t, time.Second, cfg.RateLimits.Per)
	require.Equal(t, 5, cfg.RateLimits.Burst)
	require.Equal(t, 100, cfg.RateLimits.MaxKeys)
	require.Len(t, cfg.RateLimits.Rules, 1)
	require.Equal(t, "*.slow.example.com", cfg.RateLimits.Rules[0].Pattern)
	require.Equal(t, 1, cfg.RateLimits.Rules[0].Limit)
	require.Equal(t, 2*time.Second, cfg.RateLimits.Rules[0].Per)

	require.True(t, cfg.Logger.Enabled)
	require.Equal(t, string(LoggingModeAll), cfg.Logger.Mode)
	require.Equal(t, 500*time.Millisecond, cfg.Logger.SlowRequestThreshold)
	require.True(t, cfg.Logger.DumpRequests)
	require.Equal(t, config.ByteSize(16*1024), cfg.Logger.DumpMaxBodySize)

	require.True(t, cfg.Metrics.Enabled)
}

func TestConfigReadErrors(t *testing.T) {
	tests := []struct {
		name       string
		yamlData   string
		wantErrMsg string
	}{
		{
			name: "unknown rate limiting algorithm",
			yamlData: `
rateLimits:
  enabled: true
  algorithm: leakyBucket
  limit: 1
`,
			wantErrMsg: `rateLimits.algorithm: unknown value "leakyBucket", should be one of [gcra slidingWindow tokenBucket]`,
		},
		{
			name: "non-positive rate limit",
			yamlData: `
rateLimits:
  enabled: true
  limit: 0
`,
			wantErrMsg: "rateLimits.limit: must be positive",
		},
		{
			name: "rule without pattern",
			yamlData: `
rateLimits:
  enabled: true
  limit: 1
  rules:
    - limit: 5
`,
			wantErrMsg: "rateLimits.rules: rule #1: pattern cannot be empty",
		},
		{
			name: "unknown retry strategy",
			yamlData: `
retries:
  enabled: true
  policy:
    strategy: fibonacci
`,
			wantErrMsg: "retries.policy.strategy: must be one of: [exponential, constant]",
		},
		{
			name: "jitter fraction out of range",
			yamlData: `
retries:
  enabled: true
  policy:
    strategy: exponential
    exponentialBackoffBaseDelay: 1s
    exponentialBackoffMaxDelay: 2s
    exponentialBackoffJitterFraction: 1.5
`,
			wantErrMsg: "retries.policy.exponentialBackoffJitterFraction: must be in [0, 1]",
		},
		{
			name: "max delay less than base delay",
			yamlData: `
retries:
  enabled: true
  policy:
    strategy: exponential
    exponentialBackoffBaseDelay: 10s
    exponentialBackoffMaxDelay: 1s
`,
			wantErrMsg: "retries.policy.exponentialBackoffMaxDelay: must not be less than the base delay",
		},
		{
			name: "invalid logging mode",
			yamlData: `
logger:
  enabled: true
  mode: verbose
`,
			wantErrMsg: "logger.mode: must be one of: [none, all, failed]",
		},
		{
			name:       "negative timeout",
			yamlData:   "timeout: -1s",
			wantErrMsg: "timeout: must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(
				bytes.NewBufferString(tt.yamlData), config.DataTypeYAML, cfg)
			require.EqualError(t, err, tt.wantErrMsg)
		})
	}
}

func TestRetriesConfigGetPolicy(t *testing.T) {
	cfg := RetriesConfig{Policy: PolicyConfig{
		Strategy:                         RetryPolicyExponential,
		ExponentialBackoffBaseDelay:      time.Second,
		ExponentialBackoffMaxDelay:       time.Minute,
		ExponentialBackoffJitterFraction: 0,
	}}
	policy, err := cfg.GetPolicy()
	require.NoError(t, err)
	require.IsType(t, retry.ExponentialBackoffPolicy{}, policy)

	cfg = RetriesConfig{Policy: PolicyConfig{
		Strategy:                RetryPolicyConstant,
		ConstantBackoffInterval: 2 * time.Second,
	}}
	policy, err = cfg.GetPolicy()
	require.NoError(t, err)
	require.IsType(t, retry.ConstantBackoffPolicy{}, policy)

	policy, err = (&RetriesConfig{}).GetPolicy()
	require.NoError(t, err)
	require.Nil(t, policy)
}

func TestRateLimitConfigMakeLimiter(t *testing.T) {
	for _, alg := range []string{RateLimitAlgGCRA, RateLimitAlgSlidingWindow, RateLimitAlgTokenBucket} {
		cfg := RateLimitConfig{Algorithm: alg, Limit: 10, Per: time.Second, Burst: 2, MaxKeys: 10}
		limiter, err := cfg.MakeLimiter()
		require.NoError(t, err, "algorithm %s", alg)
		require.NotNil(t, limiter)
	}

	cfg := RateLimitConfig{
		Algorithm: RateLimitAlgGCRA,
		Limit:     10,
		Per:       time.Second,
		Rules: []RateLimitRuleConfig{
			{Pattern: "*.example.com", Limit: 1, Per: time.Second},
		},
	}
	limiter, err := cfg.MakeLimiter()
	require.NoError(t, err)
	require.IsType(t, &ratelimit.RuleBasedLimiter{}, limiter)
}
