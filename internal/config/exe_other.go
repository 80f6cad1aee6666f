//go:build !windows

package config

// ExecutableSuffix is empty outside Windows; any non-empty name is accepted.
const ExecutableSuffix = ""
