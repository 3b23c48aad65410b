package main

import "time"

// Device represents a connected ADB device.
type Device struct {
	Serial string `json:"serial"`
	State  string `json:"state"` // "device", "offline", "unauthorized", ...
	Type   string `json:"type"`  // "usb" or "wifi"
	IP     string `json:"ip,omitempty"`
	Port   int    `json:"port,omitempty"`
	Name   string `json:"name,omitempty"` // manufacturer + model
	ABI    string `json:"abi,omitempty"`
}

// Online reports whether the device is ready for commands.
func (d Device) Online() bool {
	return d.State == "device"
}

// CatalogApp is one installable entry from apps_config.json.
type CatalogApp struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PackageName string `json:"packageName,omitempty"`
	ABI         string `json:"abi,omitempty"`
	Selected    bool   `json:"selected"`
}

// WirelessCandidate is a potential wireless debugging target found by
// service discovery or the subnet probe. A candidate may expose a pairing
// port, a connect port, or both after merging.
type WirelessCandidate struct {
	Name        string `json:"name"`
	IP          string `json:"ip"`
	PairingPort int    `json:"pairingPort,omitempty"`
	ConnectPort int    `json:"connectPort,omitempty"`
}

// LogEntry is one line of the user-visible journal.
type LogEntry struct {
	Time     time.Time `json:"time"`
	Message  string    `json:"message"`
	Category string    `json:"category"` // "command", "stdout", "stderr", "status", "error"
}

// GuideStep is one step of a setup guide document. Opaque to the core.
type GuideStep struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ToggleResult reports one developer-setting write. Toggles are independent;
// one failing never hides another succeeding.
type ToggleResult struct {
	Name   string `json:"name"`
	Ok     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// InstallResult is the outcome of installing one catalog entry or local APK.
type InstallResult struct {
	App      string `json:"app"`
	Ok       bool   `json:"ok"`
	Conflict bool   `json:"conflict"` // resolved via uninstall+retry
	Detail   string `json:"detail,omitempty"`
}

// UninstallSummary tallies a batch uninstall.
type UninstallSummary struct {
	Success int               `json:"success"`
	Fail    int               `json:"fail"`
	Results map[string]string `json:"results"` // package -> raw output
}

// OperationRecord is one row of the persisted operation history.
type OperationRecord struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Serial  string    `json:"serial"`
	Kind    string    `json:"kind"` // "install", "uninstall", "connect", "pair", "switch-wireless"
	Subject string    `json:"subject"`
	Ok      bool      `json:"ok"`
	Detail  string    `json:"detail,omitempty"`
}

// AppSettings contains persistent application settings.
type AppSettings struct {
	SaveLocation string `json:"saveLocation"`
	LastSerial   string `json:"lastSerial"`
}
