package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestPairAndConnectPairsThenConnects(t *testing.T) {
	bridge := &fakeBridge{
		devices: []DeviceEntry{{Serial: "10.0.0.5:5555", State: "device"}},
	}
	app := newTestApp(bridge)

	out, err := app.PairAndConnect("10.0.0.5", 40000, "123456", 5555)
	if err != nil {
		t.Fatalf("PairAndConnect failed: %v", err)
	}
	if !strings.Contains(out, "connected") {
		t.Errorf("unexpected output %q", out)
	}

	var pairIdx, connectIdx = -1, -1
	for i, call := range bridge.calls {
		if call == "pair 10.0.0.5:40000" {
			pairIdx = i
		}
		if call == "connect 10.0.0.5:5555" {
			connectIdx = i
		}
	}
	if pairIdx == -1 || connectIdx == -1 || pairIdx > connectIdx {
		t.Errorf("expected pair before connect, calls: %v", bridge.calls)
	}
}

func TestPairAndConnectSkipsPairingWithoutCode(t *testing.T) {
	bridge := &fakeBridge{}
	app := newTestApp(bridge)

	if _, err := app.PairAndConnect("10.0.0.5", 0, "", 5555); err != nil {
		t.Fatalf("PairAndConnect failed: %v", err)
	}
	for _, call := range bridge.calls {
		if strings.HasPrefix(call, "pair") {
			t.Errorf("unexpected pairing call %q", call)
		}
	}
}

func TestPairAndConnectClassifiesPairingFailure(t *testing.T) {
	bridge := &fakeBridge{
		pairFn: func(address, code string) (string, error) {
			return "Failed: Wrong password or connection was dropped", nil
		},
	}
	app := newTestApp(bridge)

	if _, err := app.PairAndConnect("10.0.0.5", 40000, "000000", 5555); err == nil {
		t.Fatal("expected pairing failure")
	}
	for _, call := range bridge.calls {
		if strings.HasPrefix(call, "connect") {
			t.Errorf("connect attempted after failed pairing: %q", call)
		}
	}
}

func TestPairAndConnectClassifiesConnectFailure(t *testing.T) {
	bridge := &fakeBridge{
		connectFn: func(address string) (string, error) {
			return fmt.Sprintf("failed to connect to %s", address), nil
		},
	}
	app := newTestApp(bridge)

	if _, err := app.PairAndConnect("10.0.0.5", 0, "", 5555); err == nil {
		t.Fatal("expected connection failure")
	}
}

func TestSwitchToWirelessMissingIP(t *testing.T) {
	bridge := &fakeBridge{
		shellFn: func(serial, cmd string) (string, error) {
			if strings.HasPrefix(cmd, "ip addr show") {
				return "", fmt.Errorf("wlan0 does not exist")
			}
			return "", nil
		},
	}
	app := newTestApp(bridge)

	_, err := app.SwitchToWireless("usb-a")
	if !errors.Is(err, ErrNoDeviceIP) {
		t.Errorf("expected ErrNoDeviceIP, got %v", err)
	}
}

func TestSwitchToWirelessConnectsToWlanIP(t *testing.T) {
	bridge := &fakeBridge{
		shellFn: func(serial, cmd string) (string, error) {
			if strings.HasPrefix(cmd, "ip addr show wlan0") {
				return "    inet 192.168.1.77/24 brd 192.168.1.255 scope global wlan0\n", nil
			}
			return "", nil
		},
	}
	app := newTestApp(bridge)

	if _, err := app.SwitchToWireless("usb-a"); err != nil {
		t.Fatalf("SwitchToWireless failed: %v", err)
	}

	found := false
	for _, call := range bridge.calls {
		if call == "connect 192.168.1.77:5555" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected connect to wlan ip, calls: %v", bridge.calls)
	}
}

func TestParseWlanIP(t *testing.T) {
	output := `30: wlan0: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500
    link/ether aa:bb:cc:dd:ee:ff brd ff:ff:ff:ff:ff:ff
    inet 192.168.1.77/24 brd 192.168.1.255 scope global wlan0
    inet6 fe80::1/64 scope link
`
	if got := parseWlanIP(output); got != "192.168.1.77" {
		t.Errorf("parseWlanIP() = %q", got)
	}
	if got := parseWlanIP("no addresses here"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestApplyDeveloperTogglesIndependent(t *testing.T) {
	bridge := &fakeBridge{
		shellFn: func(serial, cmd string) (string, error) {
			if strings.Contains(cmd, "adb_wifi_enabled") {
				return "security exception", fmt.Errorf("exit status 1")
			}
			return "", nil
		},
	}
	app := newTestApp(bridge)

	results := app.ApplyDeveloperToggles("usb-a")
	if len(results) != 2 {
		t.Fatalf("expected 2 toggle results, got %d", len(results))
	}
	if results[0].Ok {
		t.Error("expected wireless-debugging toggle to fail")
	}
	if !results[1].Ok {
		t.Error("expected stay-awake toggle to succeed despite earlier failure")
	}
}

func TestWirelessOperationsWithoutBridge(t *testing.T) {
	_ = InitLogger(DefaultLogConfig())
	app := NewApp("test")

	if _, err := app.PairAndConnect("10.0.0.1", 40000, "123456", 5555); !errors.Is(err, ErrNoAdb) {
		t.Errorf("PairAndConnect: expected ErrNoAdb, got %v", err)
	}
	if _, err := app.Disconnect("10.0.0.1:5555"); !errors.Is(err, ErrNoAdb) {
		t.Errorf("Disconnect: expected ErrNoAdb, got %v", err)
	}
	if _, err := app.SwitchToWireless("usb-a"); !errors.Is(err, ErrNoAdb) {
		t.Errorf("SwitchToWireless: expected ErrNoAdb, got %v", err)
	}
	if got := app.ApplyDeveloperToggles("usb-a"); got != nil {
		t.Errorf("ApplyDeveloperToggles: expected no results, got %+v", got)
	}
}

func TestPairAndConnectLowercasePairingFailure(t *testing.T) {
	bridge := &fakeBridge{
		pairFn: func(address, code string) (string, error) {
			return "failed: protocol fault (couldn't read status message)", nil
		},
	}
	app := newTestApp(bridge)

	if _, err := app.PairAndConnect("10.0.0.5", 40000, "000000", 5555); err == nil {
		t.Fatal("expected pairing failure on lowercase output")
	}
	for _, call := range bridge.calls {
		if strings.HasPrefix(call, "connect") {
			t.Errorf("connect attempted after failed pairing: %q", call)
		}
	}
}

func TestPairConnectRejectedWhileBusy(t *testing.T) {
	app := newTestApp(&fakeBridge{})
	if err := app.beginOperation("install"); err != nil {
		t.Fatalf("beginOperation failed: %v", err)
	}
	defer app.endOperation()

	if _, err := app.PairAndConnect("10.0.0.5", 40000, "123456", 5555); err != ErrBusy {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	if _, err := app.SwitchToWireless("usb-a"); err != ErrBusy {
		t.Errorf("expected ErrBusy, got %v", err)
	}
}
