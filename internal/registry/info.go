package registry

import (
	"encoding/json"
	"os"

	"github.com/emofalling/img2arr/internal/pluginapi"
)

// readInfo loads info.json from a plug-in directory. A missing or
// malformed file is tolerated: the returned Info defaults Name to key and
// leaves the rest blank, matching the scan's "bad info.json is tolerated"
// edge-case policy.
func readInfo(path, key string) pluginapi.Info {
	info := pluginapi.Info{Name: key}

	data, err := os.ReadFile(path)
	if err != nil {
		return info
	}

	var parsed pluginapi.Info
	if err := json.Unmarshal(data, &parsed); err != nil {
		return info
	}

	if parsed.Name == "" {
		parsed.Name = key
	}
	return parsed
}
