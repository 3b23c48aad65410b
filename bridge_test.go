package main

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"
)

// fakeBridge is an in-memory Bridge used across the tests. Hooks default to
// empty successes; calls are recorded for order assertions.
type fakeBridge struct {
	devices    []DeviceEntry
	devicesErr error
	props      map[string]map[string]string

	shellFn     func(serial, cmd string) (string, error)
	installFn   func(serial, apkPath string) (string, error)
	uninstallFn func(serial, pkg string, asUser0 bool) (string, error)
	pairFn      func(address, code string) (string, error)
	connectFn   func(address string) (string, error)
	mdnsOut     string

	calls []string
}

func (f *fakeBridge) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeBridge) Devices() ([]DeviceEntry, error) {
	f.record("devices")
	return f.devices, f.devicesErr
}

func (f *fakeBridge) GetProp(serial, key string) (string, error) {
	f.record("getprop %s %s", serial, key)
	if m, ok := f.props[serial]; ok {
		return m[key], nil
	}
	return "", nil
}

func (f *fakeBridge) Shell(serial, command string) (string, error) {
	f.record("shell %s %s", serial, command)
	if f.shellFn != nil {
		return f.shellFn(serial, command)
	}
	return "", nil
}

func (f *fakeBridge) Install(serial, apkPath string) (string, error) {
	f.record("install %s %s", serial, apkPath)
	if f.installFn != nil {
		return f.installFn(serial, apkPath)
	}
	return "Success", nil
}

func (f *fakeBridge) Uninstall(serial, pkg string, asUser0 bool) (string, error) {
	f.record("uninstall %s %s user0=%v", serial, pkg, asUser0)
	if f.uninstallFn != nil {
		return f.uninstallFn(serial, pkg, asUser0)
	}
	return "Success", nil
}

func (f *fakeBridge) Pull(serial, remotePath, localPath string) error {
	f.record("pull %s %s", serial, remotePath)
	return nil
}

func (f *fakeBridge) Push(serial, localPath, remotePath string) error {
	f.record("push %s %s", serial, remotePath)
	return nil
}

func (f *fakeBridge) TCPIP(serial string, port int) (string, error) {
	f.record("tcpip %s %d", serial, port)
	return "restarting in TCP mode port: 5555", nil
}

func (f *fakeBridge) Pair(address, code string) (string, error) {
	f.record("pair %s", address)
	if f.pairFn != nil {
		return f.pairFn(address, code)
	}
	return "Successfully paired to " + address, nil
}

func (f *fakeBridge) Connect(address string) (string, error) {
	f.record("connect %s", address)
	if f.connectFn != nil {
		return f.connectFn(address)
	}
	return "connected to " + address, nil
}

func (f *fakeBridge) Disconnect(address string) (string, error) {
	f.record("disconnect %s", address)
	return "disconnected", nil
}

func (f *fakeBridge) MDNSServices() (string, error) {
	f.record("mdns services")
	return f.mdnsOut, nil
}

func (f *fakeBridge) StartShell(serial string, args ...string) (*exec.Cmd, error) {
	return nil, fmt.Errorf("not supported in tests")
}

// newTestApp builds a headless App wired to the given bridge.
func newTestApp(bridge Bridge) *App {
	_ = InitLogger(DefaultLogConfig())
	app := NewApp("test")
	app.bridge = bridge
	return app
}

func TestParseDeviceList(t *testing.T) {
	output := `List of devices attached
R5CT30XXXX	device usb:1-1 product:a52 model:SM_A525F device:a52q
192.168.1.50:5555	device product:pelo model:Peloton device:pelo
emulator-5554	offline

`
	entries := parseDeviceList(output)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Serial != "R5CT30XXXX" || entries[0].State != "device" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Serial != "192.168.1.50:5555" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
	if entries[2].State != "offline" {
		t.Errorf("unexpected third entry: %+v", entries[2])
	}
}

func TestParseDeviceListEmpty(t *testing.T) {
	if entries := parseDeviceList("List of devices attached\n\n"); len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestBridgeErrorWrapsCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := &BridgeError{Op: "adb install", Output: "Failure [INSTALL_FAILED]", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("expected BridgeError to wrap its cause")
	}
	if !strings.Contains(err.Error(), "INSTALL_FAILED") {
		t.Errorf("expected output in message, got %q", err.Error())
	}
}

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		serial   string
		wantHost string
		wantPort int
		wantOK   bool
	}{
		{"192.168.1.50:5555", "192.168.1.50", 5555, true},
		{"10.0.0.5:40000", "10.0.0.5", 40000, true},
		{"R5CT30XXXX", "", 0, false},
		{"bad:", "", 0, false},
		{":5555", "", 0, false},
	}
	for _, tt := range tests {
		host, port, ok := splitHostPort(tt.serial)
		if ok != tt.wantOK || host != tt.wantHost || port != tt.wantPort {
			t.Errorf("splitHostPort(%q) = (%q, %d, %v), want (%q, %d, %v)",
				tt.serial, host, port, ok, tt.wantHost, tt.wantPort, tt.wantOK)
		}
	}
}
