// Package config provides configuration management for the survey engine.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// EngineConfig holds tunables for trigger evaluation and assignment
// lifecycle handling.
type EngineConfig struct {
	// MaxOpenAssignments is the overload guardrail: at or above this many
	// pending/in_progress assignments, automatic intents are suppressed.
	MaxOpenAssignments int

	// EvalCacheTTL bounds staleness of the read-path evaluation cache.
	// Push-path invocations bypass the cache entirely.
	EvalCacheTTL time.Duration
}

// DefaultEngineConfig returns configuration with default values.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MaxOpenAssignments: 5,
		EvalCacheTTL:       5 * time.Minute,
	}
}

// SealKeySize is the required key length for partial-answer encryption
// (XChaCha20-Poly1305).
const SealKeySize = 32

// SealKeys extracts partial-answer encryption keys from environment
// variables. Supports SE_PARTIAL_KEY (single) and SE_PARTIAL_KEY_N
// (rotation). Returns map of key_id -> decoded key bytes.
// Key IDs are 32 hex chars (UUIDv7 without hyphens).
func SealKeys() (map[string][]byte, error) {
	keys := make(map[string][]byte)

	// Format: <key_id>:<base64_key>
	if val := os.Getenv("SE_PARTIAL_KEY"); val != "" {
		keyID, decoded, err := ParseSealKeyWithID(val)
		if err != nil {
			return nil, fmt.Errorf("SE_PARTIAL_KEY: %w", err)
		}
		keys[keyID] = decoded
	}

	// Numbered keys enable rotation: old and new keys valid during migration.
	for i := 1; ; i++ {
		name := fmt.Sprintf("SE_PARTIAL_KEY_%d", i)
		val := os.Getenv(name)
		if val == "" {
			break
		}
		keyID, decoded, err := ParseSealKeyWithID(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if _, exists := keys[keyID]; exists {
			return nil, fmt.Errorf("duplicate key_id '%s' found in environment variables (check SE_PARTIAL_KEY and SE_PARTIAL_KEY_* for conflicts)", keyID)
		}
		keys[keyID] = decoded
	}

	return keys, nil
}

// ParseSealKeyWithID parses key_id:base64_key format.
// Key ID must be 32 hex chars (UUIDv7 without hyphens).
func ParseSealKeyWithID(envValue string) (keyID string, key []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <key_id>:<base64_key>")
	}

	keyID = parts[0]
	if len(keyID) != 32 {
		return "", nil, fmt.Errorf("key_id must be 32 hex chars (UUIDv7 without hyphens)")
	}

	for _, c := range keyID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("key_id must be hex chars only")
		}
	}

	key, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	if len(key) != SealKeySize {
		return "", nil, fmt.Errorf("key must be exactly %d bytes, got %d", SealKeySize, len(key))
	}

	return keyID, key, nil
}
