package pluginapi

import (
	"fmt"
	"strings"
	"unsafe"
)

// signPrefix is the mandatory prefix of every plug-in's ext_sign value.
const signPrefix = "img2arr."

// ReadSign reads a NUL-terminated C string starting at addr. ext_sign is
// exported as a plain char[], not a length-prefixed string, so the only
// way to know where it ends is to scan for the terminator.
func ReadSign(addr uintptr) string {
	if addr == 0 {
		return ""
	}
	var b strings.Builder
	for i := uintptr(0); ; i++ {
		c := *(*byte)(unsafe.Pointer(addr + i))
		if c == 0 {
			break
		}
		b.WriteByte(c)
	}
	return b.String()
}

// CheckSign validates an ext_sign value against the stage and category a
// plug-in was discovered under, e.g. "img2arr.prep.img.zoom" for a plug-in
// found at <root>/prep/img/zoom.
func CheckSign(sign string, stage Stage, category string) error {
	want := fmt.Sprintf("%s%s.%s.", signPrefix, stage, category)
	if !strings.HasPrefix(sign, want) {
		return fmt.Errorf("%w: want prefix %q, got %q", ErrInvalidSignature, want, sign)
	}
	return nil
}
