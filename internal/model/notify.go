package model

// Notifier delivers short transient user-visible messages. Every auth
// operation's outcome produces exactly one notification; delivery is
// best-effort and must never block.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}
