package types

// ---- Common service state (retained) ----

type State struct {
	Level  string `json:"level"`  // "idle", "ready", "error", "stopped"
	Status string `json:"status"` // short code, e.g. "awaiting_config", "wrong_chip"
	Error  string `json:"error,omitempty"`
	TS     int64  `json:"ts_ms"`
}

const (
	LevelIdle    = "idle"
	LevelReady   = "ready"
	LevelError   = "error"
	LevelStopped = "stopped"
)

// Link is the link/state reported for a capability.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

type CapabilityStatus struct {
	Link  Link   `json:"link"`
	TS    int64  `json:"ts_ms"`
	Error string `json:"error,omitempty"`
}

// Info envelope each device exposes (retained).
type Info struct {
	SchemaVersion int    `json:"schema_version"`
	Driver        string `json:"driver"`
	Detail        any    `json:"detail,omitempty"`
}

// Generic replies
type OKReply struct {
	OK bool `json:"ok"`
}
type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
