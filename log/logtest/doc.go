/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

// Package logtest provides a log recorder for inspecting logged entries in tests.
package logtest
