package types

import "log/slog"

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"` + redactedPlaceholder + `"`)

// SecretString holds a credential-bearing config value, chiefly the MongoDB
// connection URI whose userinfo carries the database password. Every
// formatting path (fmt verbs, JSON, slog) prints a placeholder, so a config
// struct can be logged or dumped whole.
//
// Unmask is the only way back to the raw value and belongs at the call that
// hands it to a driver.
type SecretString string

func (s SecretString) String() string { return redactedPlaceholder }

// GoString covers %#v, which bypasses String.
func (s SecretString) GoString() string { return redactedPlaceholder }

func (s SecretString) MarshalJSON() ([]byte, error) { return redactedJSON, nil }

// LogValue keeps the secret out of slog output regardless of handler.
func (s SecretString) LogValue() slog.Value { return slog.StringValue(redactedPlaceholder) }

// Unmask returns the raw value.
func (s SecretString) Unmask() string { return string(s) }
