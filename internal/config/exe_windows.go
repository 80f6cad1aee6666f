package config

// ExecutableSuffix is the suffix every configured process name must carry.
const ExecutableSuffix = ".exe"
