package registry

import (
	"os"
	"regexp"
)

// CompanionCapabilities is a bitmask of the optional callbacks a scripted
// UI companion implements. The companion body itself stays opaque to the
// core; only the capability set (which hooks the UI collaborator may call)
// is modeled here.
type CompanionCapabilities uint8

// Capability bits, one per duck-typed companion method.
const (
	CapUpdate CompanionCapabilities = 1 << iota
	CapUpdateEnd
	CapUpdatePreview
	CapUIInit
)

// Has reports whether the bit b is set.
func (c CompanionCapabilities) Has(b CompanionCapabilities) bool {
	return c&b != 0
}

// capabilityPatterns finds def-style declarations of the duck-typed
// companion methods. The companion script's language is opaque to the
// core, so detection is a syntactic scan rather than a real import.
var capabilityPatterns = map[CompanionCapabilities]*regexp.Regexp{
	CapUpdate:        regexp.MustCompile(`(?m)^\s*def\s+update\s*\(`),
	CapUpdateEnd:     regexp.MustCompile(`(?m)^\s*def\s+update_end\s*\(`),
	CapUpdatePreview: regexp.MustCompile(`(?m)^\s*def\s+update_preview\s*\(`),
	CapUIInit:        regexp.MustCompile(`(?m)^\s*def\s+ui_init\s*\(`),
}

// ScriptedCompanion is the optional scripted module accompanying a native
// plug-in, surfaced only to the UI collaborator.
type ScriptedCompanion struct {
	Path         string
	Capabilities CompanionCapabilities
}

// loadCompanion reads a companion script and computes its capability set.
// A read error, including a missing file, is returned; loadPlugin treats
// any error here as the companion being absent.
func loadCompanion(path string) (*ScriptedCompanion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var caps CompanionCapabilities
	for bit, pattern := range capabilityPatterns {
		if pattern.Match(data) {
			caps |= bit
		}
	}

	return &ScriptedCompanion{Path: path, Capabilities: caps}, nil
}
