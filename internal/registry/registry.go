// Package registry discovers plug-in directories on disk, loads their
// metadata and native modules, and holds validated handles for the
// dispatcher to look up by (stage, category, key).
package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/emofalling/img2arr/internal/platform"
	"github.com/emofalling/img2arr/internal/pluginapi"
)

// Feature selects an optional loading step performed for each discovered
// plug-in directory.
type Feature string

// The two loadable features.
const (
	FeatureNative     Feature = "native"
	FeatureScriptedUI Feature = "scripted_ui"
)

// Descriptor is the validated handle for one discovered plug-in.
type Descriptor struct {
	Stage      pluginapi.Stage
	Category   string
	Key        string
	Path       string
	Info       pluginapi.Info
	Native     pluginapi.Native
	ScriptedUI *ScriptedCompanion
}

// ScanError records a non-fatal failure to load one plug-in directory
// during a scan.
type ScanError struct {
	Path string
	Err  error
}

func (e ScanError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Registry holds the plug-ins discovered by the most recent Scan, indexed
// by stage, category, and key.
type Registry struct {
	mu      sync.RWMutex
	entries map[pluginapi.Stage]map[string]map[string]*Descriptor
}

func newRegistry() *Registry {
	return &Registry{entries: make(map[pluginapi.Stage]map[string]map[string]*Descriptor)}
}

// Scan walks root/<stage>/<category>/<key>/ directories, loading the
// requested features for each. Per-plug-in failures are collected and
// returned alongside the registry rather than aborting the scan.
func Scan(root string, features []Feature, logger *slog.Logger) (*Registry, []ScanError) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := newRegistry()
	var errs []ScanError

	wantNative := containsFeature(features, FeatureNative)
	wantScriptedUI := containsFeature(features, FeatureScriptedUI)

	stageDirs, err := os.ReadDir(root)
	if err != nil {
		return reg, []ScanError{{Path: root, Err: err}}
	}

	for _, stageDir := range stageDirs {
		if !stageDir.IsDir() {
			continue
		}
		stage := pluginapi.Stage(stageDir.Name())
		if !stage.Valid() {
			continue
		}

		stagePath := filepath.Join(root, stageDir.Name())
		categoryDirs, err := os.ReadDir(stagePath)
		if err != nil {
			errs = append(errs, ScanError{Path: stagePath, Err: err})
			continue
		}

		for _, categoryDir := range categoryDirs {
			if !categoryDir.IsDir() {
				continue
			}
			category := categoryDir.Name()
			categoryPath := filepath.Join(stagePath, category)

			keyDirs, err := os.ReadDir(categoryPath)
			if err != nil {
				errs = append(errs, ScanError{Path: categoryPath, Err: err})
				continue
			}

			for _, keyDir := range keyDirs {
				if !keyDir.IsDir() {
					continue
				}
				key := keyDir.Name()
				pluginPath := filepath.Join(categoryPath, key)

				desc, err := loadPlugin(pluginPath, stage, category, key, wantNative, wantScriptedUI)
				if err != nil {
					errs = append(errs, ScanError{Path: pluginPath, Err: err})
					logger.Warn("registry: dropping plugin",
						slog.String("path", pluginPath), slog.String("error", err.Error()))
					continue
				}

				reg.put(desc)
			}
		}
	}

	return reg, errs
}

// loadPlugin loads one plug-in directory's info.json, native module, and
// scripted companion according to the requested features.
func loadPlugin(path string, stage pluginapi.Stage, category, key string, wantNative, wantScriptedUI bool) (*Descriptor, error) {
	desc := &Descriptor{
		Stage:    stage,
		Category: category,
		Key:      key,
		Path:     path,
		Info:     readInfo(filepath.Join(path, "info.json"), key),
	}

	if wantNative {
		nativePath, err := nativeModulePath(path)
		if err != nil {
			return nil, err
		}
		native, err := pluginapi.LoadNative(nativePath, stage, category)
		if err != nil {
			return nil, err
		}
		desc.Native = native
	}

	if wantScriptedUI {
		companionPath, err := findCompanion(path)
		if err == nil {
			companion, err := loadCompanion(companionPath)
			if err == nil {
				desc.ScriptedUI = companion
			}
		}
	}

	if desc.Native == nil && desc.ScriptedUI == nil {
		return nil, fmt.Errorf("no requested feature loaded for plugin at %s", path)
	}

	return desc, nil
}

// nativeModulePath resolves the platform-tagged native module file within
// a plug-in directory. A plug-in whose native module is missing is
// rejected.
func nativeModulePath(pluginDir string) (string, error) {
	name, err := platform.Current().NativeFileName()
	if err != nil {
		return "", err
	}
	path := filepath.Join(pluginDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("native module %s not found: %w", name, err)
	}
	return path, nil
}

// findCompanion locates the optional scripted companion in a plug-in
// directory: any file named "ext.*" other than the native module itself.
func findCompanion(pluginDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(pluginDir, "ext.*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no companion script found")
	}
	return matches[0], nil
}

func containsFeature(features []Feature, want Feature) bool {
	for _, f := range features {
		if f == want {
			return true
		}
	}
	return false
}

func (r *Registry) put(desc *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byCategory, ok := r.entries[desc.Stage]
	if !ok {
		byCategory = make(map[string]map[string]*Descriptor)
		r.entries[desc.Stage] = byCategory
	}
	byKey, ok := byCategory[desc.Category]
	if !ok {
		byKey = make(map[string]*Descriptor)
		byCategory[desc.Category] = byKey
	}
	byKey[desc.Key] = desc
}

// Get resolves a validated plug-in handle. Returns ErrUnknownPlugin if the
// (stage, category, key) triple was never discovered by Scan.
func (r *Registry) Get(stage pluginapi.Stage, category, key string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byCategory, ok := r.entries[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s/%s", pluginapi.ErrUnknownPlugin, stage, category, key)
	}
	byKey, ok := byCategory[category]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s/%s", pluginapi.ErrUnknownPlugin, stage, category, key)
	}
	desc, ok := byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s/%s", pluginapi.ErrUnknownPlugin, stage, category, key)
	}
	return desc, nil
}

// List returns every descriptor currently held, for CLI introspection.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Descriptor
	for _, byCategory := range r.entries {
		for _, byKey := range byCategory {
			for _, desc := range byKey {
				out = append(out, desc)
			}
		}
	}
	return out
}

// Close releases every loaded native module's shared-object handle.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, byCategory := range r.entries {
		for _, byKey := range byCategory {
			for _, desc := range byKey {
				if desc.Native == nil {
					continue
				}
				if err := desc.Native.Close(); err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}
