package models

// Modes understood by the router.
const (
	ModeBrowser Mode = "browser"
	ModeCode    Mode = "code"
)

// Outcome statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Event types published by the engine.
const (
	EventTaskSubmitted = "task_submitted"
	EventTaskStarted   = "task_started"
	EventTaskCompleted = "task_completed"
	EventAgentActivity = "agent_activity"
)

// Memory tiers.
const (
	TierShortTerm = "stm"
	TierLongTerm  = "ltm"
)

// Default limits.
const (
	DefaultConcurrency         = 1
	DefaultMaxRequestBodyBytes = 1 << 20 // 1 MiB
	DefaultSSEChannelBuffer    = 256
	DefaultSTMMaxEntries       = 1024
	DefaultQueryLimit          = 500
	DefaultPort                = 3548
)
