package preprocess

import "github.com/emofalling/img2arr/internal/pluginapi"

// PreBuffer holds the preprocessing chain's final output: the RGBA buffer
// fed to the CODE stage. It is owned by the pipeline façade and mutated in
// place by the iterator's last step.
type PreBuffer struct {
	Data  []byte
	Shape pluginapi.Shape
}

// EnsureShape resizes p to shape if needed, without copying any data —
// used by the pipeline façade's code_view/code/out preflight, where the
// dispatched kernel itself will populate the buffer.
func (p *PreBuffer) EnsureShape(shape pluginapi.Shape) (resized bool) {
	if shapeEqual(p.Shape, shape) {
		return false
	}
	p.Shape = append(pluginapi.Shape{}, shape...)
	size := shape.Len()
	if int64(cap(p.Data)) < size {
		p.Data = make([]byte, size)
	} else {
		p.Data = p.Data[:size]
	}
	return true
}

// mirror resizes p to shape if needed and copies data into it, reporting
// whether a resize occurred.
func (p *PreBuffer) mirror(data []byte, shape pluginapi.Shape) (resized bool) {
	if !shapeEqual(p.Shape, shape) {
		p.Shape = append(pluginapi.Shape{}, shape...)
		size := shape.Len()
		if int64(cap(p.Data)) < size {
			p.Data = make([]byte, size)
		} else {
			p.Data = p.Data[:size]
		}
		resized = true
	}
	copy(p.Data, data)
	return resized
}

func shapeEqual(a, b pluginapi.Shape) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
