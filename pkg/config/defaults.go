package config

// Run defaults.
const (
	DefaultLanguage         = "java"
	DefaultMaxSteps         = 10_000
	DefaultWorkers          = 0
	DefaultMaxRounds        = 8
	DefaultGrepHeuristic    = true
	DefaultDeleteEmptyFiles = true
	DefaultDryRun           = false
)

// Rule defaults.
const (
	DefaultBuiltinRules = true
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = FormatText
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)
