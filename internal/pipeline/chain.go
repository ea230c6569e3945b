package pipeline

import (
	"unsafe"

	"github.com/emofalling/img2arr/internal/pluginapi"
)

// Node is one configured step of the preprocessing chain. Name == ""
// designates the virtual identity node; Native is nil in that case. Args
// is the plug-in's encoded argument struct, opaque to the core.
type Node struct {
	Name   string
	Native pluginapi.Native
	Args   unsafe.Pointer
}
