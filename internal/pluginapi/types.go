// Package pluginapi defines the ABI contract a native img2arr plug-in must
// satisfy, and the pure-Go (no cgo) machinery used to load and call it.
package pluginapi

import "fmt"

// Stage identifies where in the pipeline a plug-in runs.
type Stage string

// The four plug-in stages.
const (
	StageOpen Stage = "open"
	StagePrep Stage = "prep"
	StageCode Stage = "code"
	StageOut  Stage = "out"
)

// Valid reports whether s is one of the four recognized stages.
func (s Stage) Valid() bool {
	switch s {
	case StageOpen, StagePrep, StageCode, StageOut:
		return true
	default:
		return false
	}
}

// Attr is the attribute bitfield returned by io_GetOutInfo.
type Attr int32

// Attribute bits. Other bits are reserved.
const (
	AttrReuse    Attr = 1 << 0
	AttrReadonly Attr = 1 << 1
)

// Has reports whether the bit b is set.
func (a Attr) Has(b Attr) bool {
	return a&b != 0
}

func (a Attr) String() string {
	if a == 0 {
		return "none"
	}
	s := ""
	if a.Has(AttrReuse) {
		s += "REUSE"
	}
	if a.Has(AttrReadonly) {
		if s != "" {
			s += "|"
		}
		s += "READONLY"
	}
	return s
}

// DispatchKind selects which output-shape query and worker-entry pair a
// dispatch uses for the CODE stage.
type DispatchKind int

// The two dispatch kinds.
const (
	KindNormal DispatchKind = iota
	KindCodeView
)

// Shape is a small fixed-length integer sequence describing buffer
// dimensions: (h, w, c) for raster buffers, (len,) for 1-D byte sequences.
type Shape []int32

// WithoutChannel returns the shape with the trailing channel dimension
// dropped, as passed to a plug-in's worker entry for raster inputs. For
// already-1-D shapes it returns the shape unchanged.
func (s Shape) WithoutChannel() Shape {
	if len(s) <= 1 {
		return s
	}
	return s[:len(s)-1]
}

// Len returns the product of all dimensions, the element count.
func (s Shape) Len() int64 {
	var n int64 = 1
	for _, d := range s {
		n *= int64(d)
	}
	return n
}

func (s Shape) String() string {
	return fmt.Sprintf("%v", []int32(s))
}

// Info is the optional display metadata read from a plug-in's info.json.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	Version     string `json:"version,omitempty"`
}
