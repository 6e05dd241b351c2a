package models

import "strings"

// AdminLevel is the dashboard permission tier of an administrator.
type AdminLevel int

const (
	LevelViewer     AdminLevel = 1
	LevelOperator   AdminLevel = 2
	LevelSuperAdmin AdminLevel = 3
)

// Valid reports whether the level is one of the known tiers.
func (l AdminLevel) Valid() bool {
	return l >= LevelViewer && l <= LevelSuperAdmin
}

// Credential is one entry of the credential directory document.
// Password holds a bcrypt hash, never plaintext.
type Credential struct {
	Password string     `json:"password" yaml:"password" mapstructure:"password"`
	Name     string     `json:"name" yaml:"name" mapstructure:"name"`
	Active   bool       `json:"active" yaml:"active" mapstructure:"active"`
	Level    AdminLevel `json:"level" yaml:"level" mapstructure:"level"`
}

// CredentialDirectory maps a lower-cased username to its credential.
type CredentialDirectory map[string]Credential

// NormalizeUsername folds a username for case-insensitive lookup.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Normalized returns a copy of the directory with lower-cased keys and
// levels outside the known tiers clamped to viewer.
func (d CredentialDirectory) Normalized() CredentialDirectory {
	out := make(CredentialDirectory, len(d))
	for username, cred := range d {
		key := NormalizeUsername(username)
		if key == "" {
			continue
		}
		if !cred.Level.Valid() {
			cred.Level = LevelViewer
		}
		out[key] = cred
	}
	return out
}
