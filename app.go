package main

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const heartbeatInterval = 5 * time.Second

// App struct
type App struct {
	ctx     context.Context
	bridge  Bridge
	journal *Journal
	history *HistoryStore

	// Device registry
	regMu        sync.Mutex
	devices      []Device
	activeSerial string
	statusLine   string

	// Busy flag gating high-level operations
	busyMu   sync.Mutex
	busy     bool
	busyName string

	// App catalog
	catalogMu   sync.Mutex
	fullCatalog []CatalogApp
	catalog     []CatalogApp
	catalogPath string

	// Media capture
	recordMu      sync.Mutex
	recordCmds    map[string]*exec.Cmd
	recordPaths   map[string]string
	previewMu     sync.Mutex
	previewCancel context.CancelFunc

	// Heartbeat and watchers
	heartbeatCancel context.CancelFunc
	watcherCancel   context.CancelFunc

	// Settings
	settingsMu   sync.Mutex
	settings     AppSettings
	configDir    string
	settingsPath string

	version string
}

// NewApp creates a new App instance
func NewApp(version string) *App {
	app := &App{
		journal:     NewJournal(0),
		recordCmds:  make(map[string]*exec.Cmd),
		recordPaths: make(map[string]string),
		version:     version,
	}
	app.initConfigDir()
	return app
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	if err := InitLogger(PersistentLogConfig(a.configDir)); err != nil {
		_ = InitLogger(DefaultLogConfig())
	}

	a.journal.SetSink(func(entry LogEntry) {
		a.emitEvent("log-entry", entry)
	})

	if err := a.setupBridge(); err != nil {
		Logger.Error().Err(err).Msg("bridge setup failed")
		a.setStatus("ADB is not available. Install platform-tools and restart.")
	}

	store, err := OpenHistoryStore(filepath.Join(a.configDir, "history.db"))
	if err != nil {
		Logger.Error().Err(err).Msg("history store unavailable")
	} else {
		a.history = store
	}

	a.loadSettings()
	a.loadCatalogFromDisk()
	a.startCatalogWatcher()
	a.startHeartbeat()
}

// Shutdown is called when the application is closing
func (a *App) Shutdown(ctx context.Context) {
	if a.heartbeatCancel != nil {
		a.heartbeatCancel()
	}
	if a.watcherCancel != nil {
		a.watcherCancel()
	}
	a.StopScreenPreview()
	a.stopAllRecordings()
	if a.history != nil {
		a.history.Close()
	}
	CloseLogger()
}

// setupBridge picks the transport: a platform-tools binary when one exists,
// otherwise a running adb server on the default port.
func (a *App) setupBridge() error {
	if path, err := findAdbBinary(); err == nil {
		a.bridge = newExecBridge(path, a.journal)
		Logger.Info().Str("adb", path).Msg("using exec bridge")
		return nil
	}
	if adbServerAvailable("") {
		a.bridge = newServerBridge("", a.journal)
		Logger.Info().Str("addr", adbServerAddr).Msg("using server bridge")
		return nil
	}
	return ErrNoAdb
}

// emitEvent forwards a notification to the frontend. No-op when headless.
func (a *App) emitEvent(name string, data ...interface{}) {
	if a.ctx == nil {
		return
	}
	wailsRuntime.EventsEmit(a.ctx, name, data...)
}

// Log appends a status line to the journal.
func (a *App) Log(format string, args ...interface{}) {
	a.journal.Append("status", format, args...)
}

// GetJournal returns the retained journal entries, oldest first.
func (a *App) GetJournal() []LogEntry {
	return a.journal.Entries()
}

// GetVersion returns the application version
func (a *App) GetVersion() string {
	return a.version
}

// setStatus updates the status line and notifies the frontend.
func (a *App) setStatus(status string) {
	a.regMu.Lock()
	changed := a.statusLine != status
	a.statusLine = status
	a.regMu.Unlock()
	if changed {
		a.emitEvent("status-changed", status)
	}
}

// GetStatus returns the current status line.
func (a *App) GetStatus() string {
	a.regMu.Lock()
	defer a.regMu.Unlock()
	return a.statusLine
}

// beginOperation takes the busy flag; ErrBusy when an operation is running.
func (a *App) beginOperation(name string) error {
	a.busyMu.Lock()
	defer a.busyMu.Unlock()
	if a.busy {
		return ErrBusy
	}
	a.busy = true
	a.busyName = name
	a.emitEvent("busy-changed", true)
	return nil
}

func (a *App) endOperation() {
	a.busyMu.Lock()
	a.busy = false
	a.busyName = ""
	a.busyMu.Unlock()
	a.emitEvent("busy-changed", false)
}

// IsBusy reports whether a gated operation is in flight.
func (a *App) IsBusy() bool {
	a.busyMu.Lock()
	defer a.busyMu.Unlock()
	return a.busy
}

// startHeartbeat polls the registry every 5 seconds, skipping while busy.
func (a *App) startHeartbeat() {
	ctx, cancel := context.WithCancel(context.Background())
	a.heartbeatCancel = cancel

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if a.IsBusy() {
					continue
				}
				a.RefreshDevices()
			}
		}
	}()
}

// Settings persistence

func (a *App) initConfigDir() {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	appConfigDir := filepath.Join(configDir, "OpenPelo")
	_ = os.MkdirAll(appConfigDir, 0755)
	a.configDir = appConfigDir
	a.settingsPath = filepath.Join(appConfigDir, "settings.json")
	a.catalogPath = filepath.Join(appConfigDir, "apps_config.json")
}

func (a *App) loadSettings() {
	if a.settingsPath == "" {
		return
	}
	data, err := os.ReadFile(a.settingsPath)
	if err != nil {
		return
	}
	var settings AppSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return
	}

	a.settingsMu.Lock()
	a.settings = settings
	a.settingsMu.Unlock()
}

func (a *App) saveSettings() {
	if a.settingsPath == "" {
		return
	}

	a.settingsMu.Lock()
	settings := a.settings
	a.settingsMu.Unlock()

	data, err := json.Marshal(settings)
	if err != nil {
		return
	}
	_ = os.WriteFile(a.settingsPath, data, 0644)
}

// GetSettings returns the persisted UI settings.
func (a *App) GetSettings() AppSettings {
	a.settingsMu.Lock()
	defer a.settingsMu.Unlock()
	return a.settings
}

// SetSaveLocation updates where screenshots and recordings are written.
func (a *App) SetSaveLocation(dir string) {
	a.settingsMu.Lock()
	a.settings.SaveLocation = dir
	a.settingsMu.Unlock()
	go a.saveSettings()
}

// saveLocation resolves the media output directory, defaulting to the
// user's home directory.
func (a *App) saveLocation() string {
	a.settingsMu.Lock()
	dir := a.settings.SaveLocation
	a.settingsMu.Unlock()
	if dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.TempDir()
}

// ChooseSaveLocation opens a native directory picker and persists the choice.
func (a *App) ChooseSaveLocation() (string, error) {
	if a.ctx == nil {
		return "", ErrNoDialog
	}
	dir, err := wailsRuntime.OpenDirectoryDialog(a.ctx, wailsRuntime.OpenDialogOptions{
		Title:            "Choose save location",
		DefaultDirectory: a.saveLocation(),
	})
	if err != nil || dir == "" {
		return "", err
	}
	a.SetSaveLocation(dir)
	return dir, nil
}
