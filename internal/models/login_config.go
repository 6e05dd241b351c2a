package models

// LoginConfig is the persisted shape of the login attempt gate, both in the
// local cache and in the remote document store.
type LoginConfig struct {
	MaxAttempts     int    `json:"maxAttempts"`
	Locked          bool   `json:"locked"`
	CurrentAttempts int    `json:"currentAttempts"`
	LastAttempt     string `json:"lastAttempt,omitempty"`
}
