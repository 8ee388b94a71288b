/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

// Package config provides a thin framework for describing and loading
// configuration of the fetching pipeline from YAML/JSON files and
// environment variables.
package config

// Config is a common interface for configuration objects that may be used by Loader.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is an interface for providing key prefix that will be used for configuration parameters.
type KeyPrefixProvider interface {
	KeyPrefix() string
}
