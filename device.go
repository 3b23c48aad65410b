package main

import (
	"fmt"
	"strings"
)

const noDeviceStatus = "No device detected. Please connect your device and enable USB debugging."

// RefreshDevices runs one registry poll cycle: enumerate, diff against the
// current snapshot, and replace it wholesale when something changed. An
// unchanged enumeration is a no-op and produces no journal line.
func (a *App) RefreshDevices() []Device {
	if a.bridge == nil {
		return nil
	}

	entries, err := a.bridge.Devices()
	if err != nil {
		DeviceLog().Err(err).Msg("device enumeration failed")
		a.journal.Append("error", "Device scan failed: %v", err)
		return a.snapshotDevices()
	}

	a.regMu.Lock()
	unchanged := len(entries) == len(a.devices) &&
		(len(entries) == 0 || entries[0].Serial == a.devices[0].Serial)
	a.regMu.Unlock()

	if unchanged {
		a.refreshActiveInPlace()
		return a.snapshotDevices()
	}

	devices := make([]Device, 0, len(entries))
	for _, e := range entries {
		d := Device{Serial: e.Serial, State: e.State, Type: "usb"}
		if strings.Contains(e.Serial, ":") || strings.Contains(e.Serial, "._tcp") {
			d.Type = "wifi"
			if host, port, ok := splitHostPort(e.Serial); ok {
				d.IP = host
				d.Port = port
			}
		}
		if d.Online() {
			a.attachMetadata(&d)
		}
		devices = append(devices, d)
	}

	a.regMu.Lock()
	prevActive := a.activeSerial
	a.devices = devices
	a.activeSerial = pickActiveSerial(devices, prevActive)
	active := a.activeSerial
	a.regMu.Unlock()

	DeviceLog().Int("count", len(devices)).Str("active", active).Msg("device list changed")
	a.journal.Append("status", "Device list changed: %d device(s)", len(devices))

	if len(devices) == 0 {
		a.clearCatalogSelection()
		a.setStatus(noDeviceStatus)
	} else {
		a.updateConnectedStatus()
		if active != prevActive {
			a.reloadCatalogForActive()
			a.rememberLastSerial(active)
		}
	}

	a.emitEvent("devices-changed", devices)
	return a.snapshotDevices()
}

// refreshActiveInPlace re-reads metadata for the active device without
// touching the snapshot or selection.
func (a *App) refreshActiveInPlace() {
	a.regMu.Lock()
	serial := a.activeSerial
	a.regMu.Unlock()
	if serial == "" {
		return
	}

	a.regMu.Lock()
	var dev *Device
	for i := range a.devices {
		if a.devices[i].Serial == serial {
			dev = &a.devices[i]
			break
		}
	}
	needsMeta := dev != nil && dev.Online() && dev.Name == ""
	a.regMu.Unlock()

	if needsMeta {
		d := Device{Serial: serial, State: "device"}
		a.attachMetadata(&d)
		a.regMu.Lock()
		for i := range a.devices {
			if a.devices[i].Serial == serial {
				a.devices[i].Name = d.Name
				a.devices[i].ABI = d.ABI
			}
		}
		a.regMu.Unlock()
		a.updateConnectedStatus()
	}
}

// pickActiveSerial applies the selection rules: keep the current selection if
// it survived, otherwise prefer a wireless device, otherwise take the first
// online one.
func pickActiveSerial(devices []Device, current string) string {
	for _, d := range devices {
		if d.Serial == current && d.Online() {
			return current
		}
	}
	for _, d := range devices {
		if d.Type == "wifi" && d.Online() {
			return d.Serial
		}
	}
	for _, d := range devices {
		if d.Online() {
			return d.Serial
		}
	}
	return ""
}

// attachMetadata fills display name and ABI from device properties.
func (a *App) attachMetadata(d *Device) {
	manufacturer, _ := a.bridge.GetProp(d.Serial, "ro.product.manufacturer")
	model, _ := a.bridge.GetProp(d.Serial, "ro.product.model")
	name := strings.TrimSpace(strings.TrimSpace(manufacturer) + " " + strings.TrimSpace(model))
	if name != "" {
		d.Name = name
	}
	if abi, err := a.bridge.GetProp(d.Serial, "ro.product.cpu.abi"); err == nil {
		d.ABI = abi
	}
}

func (a *App) updateConnectedStatus() {
	active, ok := a.GetActiveDevice()
	if !ok {
		a.setStatus(noDeviceStatus)
		return
	}
	name := active.Name
	if name == "" {
		name = active.Serial
	}
	a.setStatus(fmt.Sprintf("Connected to %s", name))
}

func (a *App) snapshotDevices() []Device {
	a.regMu.Lock()
	defer a.regMu.Unlock()
	out := make([]Device, len(a.devices))
	copy(out, a.devices)
	return out
}

// GetDevices returns the current registry snapshot.
func (a *App) GetDevices() []Device {
	return a.snapshotDevices()
}

// GetActiveDevice returns the selected device, if any.
func (a *App) GetActiveDevice() (Device, bool) {
	a.regMu.Lock()
	defer a.regMu.Unlock()
	for _, d := range a.devices {
		if d.Serial == a.activeSerial {
			return d, true
		}
	}
	return Device{}, false
}

// GetActiveSerial returns the selected serial, or "".
func (a *App) GetActiveSerial() string {
	a.regMu.Lock()
	defer a.regMu.Unlock()
	return a.activeSerial
}

// SelectDevice makes serial the active device. Serials not present in the
// registry leave the selection unchanged.
func (a *App) SelectDevice(serial string) error {
	a.regMu.Lock()
	found := false
	for _, d := range a.devices {
		if d.Serial == serial {
			found = true
			break
		}
	}
	if !found {
		a.regMu.Unlock()
		return fmt.Errorf("unknown device %q", serial)
	}
	changed := a.activeSerial != serial
	a.activeSerial = serial
	a.regMu.Unlock()

	if changed {
		DeviceLog().Str("serial", serial).Msg("device selected")
		a.updateConnectedStatus()
		a.reloadCatalogForActive()
		a.rememberLastSerial(serial)
		a.emitEvent("devices-changed", a.snapshotDevices())
	}
	return nil
}

func (a *App) rememberLastSerial(serial string) {
	a.settingsMu.Lock()
	a.settings.LastSerial = serial
	a.settingsMu.Unlock()
	go a.saveSettings()
}

// requireActiveDevice returns the selected online device or ErrNoDevice.
func (a *App) requireActiveDevice() (Device, error) {
	d, ok := a.GetActiveDevice()
	if !ok || !d.Online() {
		return Device{}, ErrNoDevice
	}
	return d, nil
}

// splitHostPort splits "ip:port" serials; ok is false for anything else.
func splitHostPort(serial string) (string, int, bool) {
	idx := strings.LastIndex(serial, ":")
	if idx <= 0 || idx == len(serial)-1 {
		return "", 0, false
	}
	host := serial[:idx]
	var port int
	if _, err := fmt.Sscanf(serial[idx+1:], "%d", &port); err != nil {
		return "", 0, false
	}
	return host, port, true
}
