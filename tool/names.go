package tool

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	iriscore "github.com/petal-labs/iris/core"
)

// MaxSafeNameLength is the longest name accepted by strict model providers.
const MaxSafeNameLength = 64

const safeNamePrefixLength = 55

// SafeName maps a tool name onto ^[a-zA-Z0-9_-]{1,64}$. Dots and other
// invalid runes become underscores; names that are still too long are cut
// and suffixed with a random 8 hex character tag, so callers that need to map
// names back must record them in a NameMapping.
func SafeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	safe := b.String()
	if safe == "" {
		return "tool"
	}
	if len(safe) <= MaxSafeNameLength {
		return safe
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return safe[:safeNamePrefixLength] + "_" + suffix
}

// NameMapping records safe names handed to a provider and the original tool
// names they stand for. It is safe for concurrent use.
type NameMapping struct {
	mu         sync.RWMutex
	toOriginal map[string]string
	toSafe     map[string]string
}

// NewNameMapping returns an empty mapping.
func NewNameMapping() *NameMapping {
	return &NameMapping{
		toOriginal: make(map[string]string),
		toSafe:     make(map[string]string),
	}
}

// Add returns the safe name for original, reusing an earlier assignment.
func (m *NameMapping) Add(original string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if safe, ok := m.toSafe[original]; ok {
		return safe
	}
	safe := SafeName(original)
	for {
		if _, taken := m.toOriginal[safe]; !taken {
			break
		}
		// Two originals collapsed onto one safe name.
		base := safe
		if len(base) > safeNamePrefixLength {
			base = base[:safeNamePrefixLength]
		}
		safe = base + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	m.toSafe[original] = safe
	m.toOriginal[safe] = original
	return safe
}

// Original returns the tool name a safe name was assigned to.
func (m *NameMapping) Original(safe string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	original, ok := m.toOriginal[safe]
	return original, ok
}

// Restore returns a copy of calls with safe names replaced by original names.
// Unknown names are left untouched.
func (m *NameMapping) Restore(calls []iriscore.ToolCall) []iriscore.ToolCall {
	out := make([]iriscore.ToolCall, len(calls))
	for i, call := range calls {
		if original, ok := m.Original(call.Name); ok {
			call.Name = original
		}
		out[i] = call
	}
	return out
}
