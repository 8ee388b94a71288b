/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package keystore

// MetricsCollector is a collector of metrics about tracked keys.
type MetricsCollector interface {
	// SetKeysAmount sets the total number of keys in the store.
	SetKeysAmount(int)

	// IncEvictions increments the total number of evicted keys.
	IncEvictions()
}

type disabledMetrics struct{}

func (disabledMetrics) SetKeysAmount(int) {}
func (disabledMetrics) IncEvictions()     {}
