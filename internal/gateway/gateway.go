package gateway

// Messenger defines the interface for operator notification channels
// (Telegram, etc.). The display layer proper is outside the core; this is
// only the push side for approval requests and terminal plan outcomes.
type Messenger interface {
	// Send pushes a message to the configured operator channel.
	Send(text string) error
	// Stop gracefully shuts down the channel.
	Stop() error
}
