package main

import (
	"fmt"
	"strings"
	"time"
)

const wirelessSettleDelay = 2 * time.Second

// PairAndConnect pairs with a wireless debugging candidate and connects to
// it. Pairing is skipped when no code or pairing port was supplied (the
// device is already paired). The registry is refreshed afterwards so the new
// endpoint shows up without waiting for the heartbeat.
func (a *App) PairAndConnect(ip string, pairingPort int, code string, connectPort int) (string, error) {
	if err := a.beginOperation("pair-connect"); err != nil {
		return "", err
	}
	defer a.endOperation()

	if a.bridge == nil {
		return "", ErrNoAdb
	}
	if ip == "" {
		return "", fmt.Errorf("ip address is required")
	}
	if connectPort == 0 {
		connectPort = defaultConnectPort
	}

	if code != "" && pairingPort != 0 {
		pairAddr := fmt.Sprintf("%s:%d", ip, pairingPort)
		a.journal.Append("status", "Pairing with %s...", pairAddr)
		out, err := a.bridge.Pair(pairAddr, code)
		if err != nil || strings.Contains(strings.ToLower(out), "failed") {
			a.journal.Append("error", "Pairing with %s failed", pairAddr)
			a.recordOperation("", "pair", pairAddr, false, strings.TrimSpace(out))
			if err != nil {
				return out, err
			}
			return out, fmt.Errorf("pairing failed: %s", strings.TrimSpace(out))
		}
		a.recordOperation("", "pair", pairAddr, true, "")
	}

	connectAddr := fmt.Sprintf("%s:%d", ip, connectPort)
	a.journal.Append("status", "Connecting to %s...", connectAddr)
	out, err := a.bridge.Connect(connectAddr)
	if err != nil {
		a.recordOperation("", "connect", connectAddr, false, strings.TrimSpace(out))
		return out, err
	}
	if !strings.Contains(out, "connected") {
		a.recordOperation("", "connect", connectAddr, false, strings.TrimSpace(out))
		return out, fmt.Errorf("connection failed: %s", strings.TrimSpace(out))
	}
	a.recordOperation(connectAddr, "connect", connectAddr, true, "")

	time.Sleep(wirelessSettleDelay)
	a.RefreshDevices()
	return out, nil
}

// Disconnect drops a wireless endpoint and refreshes the registry.
func (a *App) Disconnect(address string) (string, error) {
	if a.bridge == nil {
		return "", ErrNoAdb
	}
	if address == "" {
		return "", fmt.Errorf("address is required")
	}
	out, err := a.bridge.Disconnect(address)
	a.RefreshDevices()
	return out, err
}

// SwitchToWireless moves a USB device onto wireless debugging: restart adbd
// in tcpip mode, read the wlan address, connect to it. A device without a
// wlan address reports ErrNoDeviceIP, distinct from a failed connect.
func (a *App) SwitchToWireless(serial string) (string, error) {
	if err := a.beginOperation("switch-wireless"); err != nil {
		return "", err
	}
	defer a.endOperation()

	if a.bridge == nil {
		return "", ErrNoAdb
	}
	if serial == "" {
		serial = a.GetActiveSerial()
	}
	if serial == "" {
		return "", ErrNoDevice
	}

	a.journal.Append("status", "Switching %s to wireless...", serial)
	if out, err := a.bridge.TCPIP(serial, defaultConnectPort); err != nil {
		a.recordOperation(serial, "switch-wireless", serial, false, strings.TrimSpace(out))
		return out, err
	}

	time.Sleep(wirelessSettleDelay)

	ip, err := a.deviceWlanIP(serial)
	if err != nil {
		a.recordOperation(serial, "switch-wireless", serial, false, err.Error())
		return "", err
	}

	connectAddr := fmt.Sprintf("%s:%d", ip, defaultConnectPort)
	out, err := a.bridge.Connect(connectAddr)
	if err != nil {
		a.recordOperation(serial, "switch-wireless", connectAddr, false, strings.TrimSpace(out))
		return out, err
	}
	if !strings.Contains(out, "connected") {
		a.recordOperation(serial, "switch-wireless", connectAddr, false, strings.TrimSpace(out))
		return out, fmt.Errorf("connection failed: %s", strings.TrimSpace(out))
	}
	a.recordOperation(serial, "switch-wireless", connectAddr, true, "")

	a.RefreshDevices()
	return out, nil
}

// deviceWlanIP reads the device's wlan0 address, falling back to the dhcp
// property on older builds.
func (a *App) deviceWlanIP(serial string) (string, error) {
	out, err := a.bridge.Shell(serial, "ip addr show wlan0")
	if err == nil {
		if ip := parseWlanIP(out); ip != "" {
			return ip, nil
		}
	}

	prop, err := a.bridge.GetProp(serial, "dhcp.wlan0.ipaddress")
	if err == nil && strings.TrimSpace(prop) != "" {
		return strings.TrimSpace(prop), nil
	}
	return "", ErrNoDeviceIP
}

// parseWlanIP extracts the IPv4 address from `ip addr show` output.
func parseWlanIP(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "inet ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		addr := fields[1]
		if idx := strings.Index(addr, "/"); idx > 0 {
			addr = addr[:idx]
		}
		return addr
	}
	return ""
}

// ApplyDeveloperToggles writes the convenience developer settings. Each
// toggle is independent and best-effort.
func (a *App) ApplyDeveloperToggles(serial string) []ToggleResult {
	if a.bridge == nil {
		return nil
	}
	if serial == "" {
		serial = a.GetActiveSerial()
	}

	toggles := []struct {
		name string
		cmd  string
	}{
		{"wireless-debugging", "settings put global adb_wifi_enabled 1"},
		{"stay-awake", "settings put global stay_on_while_plugged_in 3"},
	}

	results := make([]ToggleResult, 0, len(toggles))
	for _, t := range toggles {
		out, err := a.bridge.Shell(serial, t.cmd)
		r := ToggleResult{Name: t.name, Ok: err == nil}
		if err != nil {
			r.Detail = strings.TrimSpace(out)
			if r.Detail == "" {
				r.Detail = err.Error()
			}
		}
		results = append(results, r)
	}
	return results
}
