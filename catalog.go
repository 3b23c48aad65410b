package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// catalogFile is the on-disk layout of apps_config.json.
type catalogFile struct {
	Apps map[string]catalogEntry `json:"apps"`
}

type catalogEntry struct {
	Description string `json:"description"`
	URL         string `json:"url"`
	PackageName string `json:"package_name,omitempty"`
	ABI         string `json:"abi,omitempty"`
}

// loadCatalogFromDisk reads apps_config.json and filters it for the active
// device. A missing or malformed file leaves the catalog empty.
func (a *App) loadCatalogFromDisk() {
	data, err := os.ReadFile(a.catalogPath)
	if err != nil {
		a.journal.Append("status", "No app catalog found at %s", a.catalogPath)
		return
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		a.journal.Append("error", "App catalog is not valid JSON: %v", err)
		return
	}

	names := make([]string, 0, len(file.Apps))
	for name := range file.Apps {
		names = append(names, name)
	}
	sort.Strings(names)

	all := make([]CatalogApp, 0, len(names))
	for _, name := range names {
		e := file.Apps[name]
		all = append(all, CatalogApp{
			Name:        name,
			Description: e.Description,
			URL:         e.URL,
			PackageName: e.PackageName,
			ABI:         e.ABI,
		})
	}

	a.catalogMu.Lock()
	a.fullCatalog = all
	a.catalogMu.Unlock()

	a.reloadCatalogForActive()
}

// reloadCatalogForActive re-filters the catalog for the active device's ABI
// and drops stale selections.
func (a *App) reloadCatalogForActive() {
	abi := ""
	if d, ok := a.GetActiveDevice(); ok {
		abi = d.ABI
	}

	a.catalogMu.Lock()
	a.catalog = filterCatalogForABI(a.fullCatalog, abi)
	snapshot := make([]CatalogApp, len(a.catalog))
	copy(snapshot, a.catalog)
	a.catalogMu.Unlock()

	a.emitEvent("catalog-changed", snapshot)
}

// filterCatalogForABI keeps the entries compatible with the device. A 32-bit
// device sees only 32-bit builds; everything else sees the 64-bit builds.
// Entries without an abi tag are dropped.
func filterCatalogForABI(all []CatalogApp, abi string) []CatalogApp {
	want := "arm64-v8a"
	if strings.TrimSpace(abi) == "armeabi-v7a" {
		want = "armeabi-v7a"
	}

	var out []CatalogApp
	for _, app := range all {
		if app.ABI == want {
			app.Selected = false
			out = append(out, app)
		}
	}
	return out
}

func (a *App) clearCatalogSelection() {
	a.catalogMu.Lock()
	a.catalog = nil
	a.catalogMu.Unlock()
	a.emitEvent("catalog-changed", []CatalogApp{})
}

// GetCatalog returns the catalog entries for the active device.
func (a *App) GetCatalog() []CatalogApp {
	a.catalogMu.Lock()
	defer a.catalogMu.Unlock()
	out := make([]CatalogApp, len(a.catalog))
	copy(out, a.catalog)
	return out
}

// SetAppSelected toggles an entry's install selection.
func (a *App) SetAppSelected(name string, selected bool) {
	a.catalogMu.Lock()
	defer a.catalogMu.Unlock()
	for i := range a.catalog {
		if a.catalog[i].Name == name {
			a.catalog[i].Selected = selected
		}
	}
}

func (a *App) selectedApps() []CatalogApp {
	a.catalogMu.Lock()
	defer a.catalogMu.Unlock()
	var out []CatalogApp
	for _, app := range a.catalog {
		if app.Selected {
			out = append(out, app)
		}
	}
	return out
}

// startCatalogWatcher reloads the catalog when apps_config.json changes.
func (a *App) startCatalogWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		Logger.Error().Err(err).Msg("catalog watcher unavailable")
		return
	}
	if err := watcher.Add(filepath.Dir(a.catalogPath)); err != nil {
		Logger.Error().Err(err).Msg("cannot watch config dir")
		watcher.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.watcherCancel = cancel

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filepath.Base(a.catalogPath) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				Logger.Info().Str("file", event.Name).Msg("catalog changed on disk")
				a.loadCatalogFromDisk()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				Logger.Error().Err(err).Msg("catalog watcher error")
			}
		}
	}()
}
