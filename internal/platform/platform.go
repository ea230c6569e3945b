// Package platform normalizes the host OS and CPU architecture into the
// platform tag used to name plug-in shared objects.
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// Tag is a normalized (system, arch) pair.
type Tag struct {
	System string
	Arch   string
}

// archAliases maps Go's runtime.GOARCH values (and a few common uname
// spellings) onto the canonical arch names plug-in directories expect.
var archAliases = map[string]string{
	"amd64":  "x86_64",
	"386":    "x86",
	"arm64":  "aarch64",
	"armv7l": "arm",
	"arm":    "arm",
}

// soExt maps runtime.GOOS to the shared-object file extension used when
// naming a plug-in's native module.
var soExt = map[string]string{
	"windows": "dll",
	"linux":   "so",
	"darwin":  "dylib",
}

// Current returns the normalized platform tag for the running process.
func Current() Tag {
	return Normalize(runtime.GOOS, runtime.GOARCH)
}

// Normalize lowercases and aliases a raw (system, arch) pair.
func Normalize(system, arch string) Tag {
	system = strings.ToLower(system)
	arch = strings.ToLower(arch)
	if alias, ok := archAliases[arch]; ok {
		arch = alias
	}
	return Tag{System: system, Arch: arch}
}

// String renders the tag as "<system>_<arch>", the form embedded in a
// plug-in's native module file name.
func (t Tag) String() string {
	return fmt.Sprintf("%s_%s", t.System, t.Arch)
}

// SharedObjectSuffix returns the platform's native module extension.
// Returns an error only when the caller actually needs to load a
// platform-tagged plug-in on an OS this core has no suffix mapping for;
// callers that just want the tag string may ignore it.
func (t Tag) SharedObjectSuffix() (string, error) {
	ext, ok := soExt[t.System]
	if !ok {
		return "", fmt.Errorf("platform: no shared-object suffix known for system %q", t.System)
	}
	return ext, nil
}

// NativeFileName returns the expected native module file name for this
// platform, e.g. "main_linux_x86_64.so".
func (t Tag) NativeFileName() (string, error) {
	ext, err := t.SharedObjectSuffix()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("main_%s_%s.%s", t.System, t.Arch, ext), nil
}
