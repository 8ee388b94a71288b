/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/vasayxtx/go-glob"
)

// Rule binds a limiter to the keys matching a glob pattern (e.g. "*.example.com").
type Rule struct {
	Pattern string
	Limiter Limiter
}

// RuleBasedLimiter dispatches admission requests to the limiter of the first
// rule whose pattern matches the key. Keys that match no rule are handled
// by the default limiter; if it is nil, such keys are always allowed.
type RuleBasedLimiter struct {
	rules          []compiledRule
	defaultLimiter Limiter
}

type compiledRule struct {
	match   func(s string) bool
	limiter Limiter
}

// NewRuleBasedLimiter creates a new RuleBasedLimiter.
// Rules are checked in the order they are passed.
func NewRuleBasedLimiter(rules []Rule, defaultLimiter Limiter) (*RuleBasedLimiter, error) {
	compiledRules := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Pattern == "" {
			return nil, fmt.Errorf("rule pattern cannot be empty")
		}
		if rule.Limiter == nil {
			return nil, fmt.Errorf("rule %q: limiter cannot be nil", rule.Pattern)
		}
		compiledRules = append(compiledRules, compiledRule{match: glob.Compile(rule.Pattern), limiter: rule.Limiter})
	}
	return &RuleBasedLimiter{rules: compiledRules, defaultLimiter: defaultLimiter}, nil
}

// Allow checks if the request should be allowed based on the rate limit
// of the first matching rule.
func (l *RuleBasedLimiter) Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	for i := range l.rules {
		if l.rules[i].match(key) {
			return l.rules[i].limiter.Allow(ctx, key)
		}
	}
	if l.defaultLimiter == nil {
		return true, 0, nil
	}
	return l.defaultLimiter.Allow(ctx, key)
}
