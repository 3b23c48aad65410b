package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Sentinel errors shared across the controller surface.
var (
	ErrBusy             = errors.New("another operation is already running")
	ErrNoDevice         = errors.New("no device selected")
	ErrNoDeviceIP       = errors.New("device has no wireless ip")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrNoAdb            = errors.New("no adb binary or server available")
	ErrNoDialog         = errors.New("native dialogs unavailable")
)

// BridgeError wraps a failed bridge call with the raw tool output.
type BridgeError struct {
	Op     string
	Output string
	Err    error
}

func (e *BridgeError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %v, output: %s", e.Op, e.Err, strings.TrimSpace(e.Output))
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BridgeError) Unwrap() error { return e.Err }

// DeviceEntry is one raw line of the device enumeration: a serial and its
// reported state, before the registry attaches metadata.
type DeviceEntry struct {
	Serial string
	State  string
}

// Bridge abstracts the debug bridge transport. Callers never branch on which
// implementation they hold; failures carry the raw output via BridgeError.
type Bridge interface {
	Devices() ([]DeviceEntry, error)
	GetProp(serial, key string) (string, error)
	Shell(serial, command string) (string, error)
	Install(serial, apkPath string) (string, error)
	Uninstall(serial, pkg string, asUser0 bool) (string, error)
	Pull(serial, remotePath, localPath string) error
	Push(serial, localPath, remotePath string) error
	TCPIP(serial string, port int) (string, error)
	Pair(address, code string) (string, error)
	Connect(address string) (string, error)
	Disconnect(address string) (string, error)
	MDNSServices() (string, error)
	// StartShell starts a long-lived shell command (screen recording) and
	// returns without waiting. Not every transport supports it.
	StartShell(serial string, args ...string) (*exec.Cmd, error)
}

const bridgeCallTimeout = 30 * time.Second

// execBridge drives a platform-tools adb binary.
type execBridge struct {
	adbPath string
	journal *Journal
}

// newExecBridge wraps the adb binary at path. The journal may be nil.
func newExecBridge(path string, journal *Journal) *execBridge {
	return &execBridge{adbPath: path, journal: journal}
}

// findAdbBinary locates adb: a PATH install first, then platform-tools
// alongside the executable.
func findAdbBinary() (string, error) {
	if p, err := exec.LookPath(adbBinaryName); err == nil {
		return p, nil
	}
	exe, err := os.Executable()
	if err == nil {
		bundled := filepath.Join(filepath.Dir(exe), "platform-tools", adbBinaryName)
		if info, err := os.Stat(bundled); err == nil && !info.IsDir() {
			return bundled, nil
		}
	}
	return "", fmt.Errorf("adb binary not found in PATH or platform-tools")
}

// newCommand creates an exec.Cmd with a clean environment to avoid proxy issues
func (b *execBridge) newCommand(ctx context.Context, args ...string) *exec.Cmd {
	var cmd *exec.Cmd
	if ctx != nil {
		cmd = exec.CommandContext(ctx, b.adbPath, args...)
	} else {
		cmd = exec.Command(b.adbPath, args...)
	}

	env := os.Environ()
	newEnv := make([]string, 0, len(env))
	proxyVars := []string{"HTTP_PROXY", "HTTPS_PROXY", "ALL_PROXY", "NO_PROXY", "http_proxy", "https_proxy", "all_proxy", "no_proxy"}

	for _, e := range env {
		isProxy := false
		for _, v := range proxyVars {
			if strings.HasPrefix(e, v+"=") {
				isProxy = true
				break
			}
		}
		if !isProxy {
			newEnv = append(newEnv, e)
		}
	}
	cmd.Env = newEnv
	return cmd
}

// run executes one adb invocation, journaling the command line and output.
func (b *execBridge) run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), bridgeCallTimeout)
	defer cancel()

	if b.journal != nil {
		b.journal.Append("command", "adb %s", strings.Join(args, " "))
	}

	cmd := b.newCommand(ctx, args...)
	output, err := cmd.CombinedOutput()
	out := string(output)

	BridgeLog().Str("args", strings.Join(args, " ")).Err(err).Msg("adb call")

	if b.journal != nil && strings.TrimSpace(out) != "" {
		category := "stdout"
		if err != nil {
			category = "stderr"
		}
		b.journal.Append(category, "%s", strings.TrimSpace(out))
	}

	if err != nil {
		return out, &BridgeError{Op: "adb " + strings.Join(args, " "), Output: out, Err: err}
	}
	return out, nil
}

func (b *execBridge) Devices() ([]DeviceEntry, error) {
	out, err := b.run("devices", "-l")
	if err != nil {
		return nil, err
	}
	return parseDeviceList(out), nil
}

// parseDeviceList extracts serial/state pairs from `adb devices -l` output.
func parseDeviceList(output string) []DeviceEntry {
	var entries []DeviceEntry
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices attached") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 {
			entries = append(entries, DeviceEntry{Serial: parts[0], State: parts[1]})
		}
	}
	return entries
}

func (b *execBridge) GetProp(serial, key string) (string, error) {
	out, err := b.run("-s", serial, "shell", "getprop", key)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (b *execBridge) Shell(serial, command string) (string, error) {
	args := append([]string{"-s", serial, "shell"}, strings.Fields(command)...)
	return b.run(args...)
}

func (b *execBridge) Install(serial, apkPath string) (string, error) {
	return b.run("-s", serial, "install", "-r", apkPath)
}

func (b *execBridge) Uninstall(serial, pkg string, asUser0 bool) (string, error) {
	if asUser0 {
		return b.run("-s", serial, "shell", "pm", "uninstall", "-k", "--user", "0", pkg)
	}
	return b.run("-s", serial, "uninstall", pkg)
}

func (b *execBridge) Pull(serial, remotePath, localPath string) error {
	_, err := b.run("-s", serial, "pull", remotePath, localPath)
	return err
}

func (b *execBridge) Push(serial, localPath, remotePath string) error {
	_, err := b.run("-s", serial, "push", localPath, remotePath)
	return err
}

func (b *execBridge) TCPIP(serial string, port int) (string, error) {
	return b.run("-s", serial, "tcpip", fmt.Sprintf("%d", port))
}

func (b *execBridge) Pair(address, code string) (string, error) {
	return b.run("pair", address, code)
}

func (b *execBridge) Connect(address string) (string, error) {
	return b.run("connect", address)
}

func (b *execBridge) Disconnect(address string) (string, error) {
	return b.run("disconnect", address)
}

func (b *execBridge) MDNSServices() (string, error) {
	return b.run("mdns", "services")
}

func (b *execBridge) StartShell(serial string, args ...string) (*exec.Cmd, error) {
	full := append([]string{"-s", serial, "shell"}, args...)

	if b.journal != nil {
		b.journal.Append("command", "adb %s", strings.Join(full, " "))
	}

	cmd := b.newCommand(nil, full...)
	if err := cmd.Start(); err != nil {
		return nil, &BridgeError{Op: "adb " + strings.Join(full, " "), Err: err}
	}
	return cmd, nil
}
