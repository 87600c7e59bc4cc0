package mcp

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Exposed tool names must satisfy [A-Za-z_][A-Za-z0-9_.\-:]{0,63}, the
// strictest charset across the supported LLM providers.
const (
	maxToolNameLen = 64

	// truncPrefixLen is how much of an over-long name survives before the
	// hash suffix is appended.
	truncPrefixLen = 47

	// hashSuffixLen is the number of hex digits appended to truncated or
	// colliding names.
	hashSuffixLen = 6
)

// SanitizeToolName builds the exposed name for a (server, tool) pair:
// "<server>__<tool>" with every disallowed rune replaced by '_', a leading
// underscore added when the first rune is not a letter or underscore, and
// over-long names cut to a 47-rune prefix plus "_<6 hex>" of the raw pair.
func SanitizeToolName(serverName, toolName string) string {
	raw := serverName + "__" + toolName
	name := replaceDisallowed(raw)
	if !isNameStart(name[0]) {
		name = "_" + name
	}
	if len(name) > maxToolNameLen {
		name = name[:truncPrefixLen] + "_" + hashSuffix(raw)
	}
	return name
}

// disambiguate appends a hash suffix derived from the raw pair so two pairs
// that sanitize to the same name stay distinct.
func disambiguate(name, serverName, toolName string) string {
	raw := serverName + "__" + toolName
	if len(name) > truncPrefixLen {
		name = name[:truncPrefixLen]
	}
	return name + "_" + hashSuffix(raw)
}

func hashSuffix(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:hashSuffixLen]
}

func replaceDisallowed(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '_' || r == '.' || r == '-' || r == ':'
}

func isNameStart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}

// ValidToolName reports whether name already satisfies the provider charset.
func ValidToolName(name string) bool {
	if name == "" || len(name) > maxToolNameLen {
		return false
	}
	if !isNameStart(name[0]) {
		return false
	}
	for _, r := range name {
		if !isNameRune(r) {
			return false
		}
	}
	return true
}
