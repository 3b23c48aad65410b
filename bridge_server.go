package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// serverBridge speaks the host smart protocol to a running adb server.
// Requests are 4-hex-length prefixed; replies start with OKAY or FAIL.
// Install has no host service, so it pushes the apk and runs pm install.
type serverBridge struct {
	addr    string
	journal *Journal
}

const adbServerAddr = "127.0.0.1:5037"

func newServerBridge(addr string, journal *Journal) *serverBridge {
	if addr == "" {
		addr = adbServerAddr
	}
	return &serverBridge{addr: addr, journal: journal}
}

// adbServerAvailable reports whether an adb server answers on addr.
func adbServerAvailable(addr string) bool {
	if addr == "" {
		addr = adbServerAddr
	}
	conn, err := net.DialTimeout("tcp", addr, 1*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (b *serverBridge) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", b.addr, 5*time.Second)
	if err != nil {
		return nil, &BridgeError{Op: "dial adb server", Err: err}
	}
	conn.SetDeadline(time.Now().Add(bridgeCallTimeout))
	return conn, nil
}

// sendRequest writes one length-prefixed request and checks the status word.
func sendRequest(conn net.Conn, request string) error {
	if _, err := fmt.Fprintf(conn, "%04x%s", len(request), request); err != nil {
		return err
	}
	status := make([]byte, 4)
	if _, err := io.ReadFull(conn, status); err != nil {
		return err
	}
	switch string(status) {
	case "OKAY":
		return nil
	case "FAIL":
		msg, _ := readBlock(conn)
		return fmt.Errorf("server rejected %q: %s", request, msg)
	default:
		return fmt.Errorf("unexpected status %q for %q", status, request)
	}
}

// readBlock reads one 4-hex-length prefixed payload.
func readBlock(conn net.Conn) (string, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return "", err
	}
	var length int
	if _, err := fmt.Sscanf(string(buf), "%04x", &length); err != nil {
		return "", fmt.Errorf("bad length prefix %q: %w", buf, err)
	}
	if length == 0 {
		return "", nil
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(conn, data); err != nil {
		return "", err
	}
	return string(data), nil
}

// query runs one host service that replies with a length-prefixed block.
func (b *serverBridge) query(service string) (string, error) {
	if b.journal != nil {
		b.journal.Append("command", "adb-server %s", service)
	}
	conn, err := b.dial()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := sendRequest(conn, service); err != nil {
		return "", &BridgeError{Op: service, Err: err}
	}
	out, err := readBlock(conn)
	if err != nil {
		return "", &BridgeError{Op: service, Err: err}
	}
	if b.journal != nil && strings.TrimSpace(out) != "" {
		b.journal.Append("stdout", "%s", strings.TrimSpace(out))
	}
	return out, nil
}

// shellRaw opens a transport to serial and streams one shell command to EOF.
func (b *serverBridge) shellRaw(serial, command string) (string, error) {
	if b.journal != nil {
		b.journal.Append("command", "adb-server -s %s shell %s", serial, command)
	}
	conn, err := b.dial()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := sendRequest(conn, "host:transport:"+serial); err != nil {
		return "", &BridgeError{Op: "transport " + serial, Err: err}
	}
	if err := sendRequest(conn, "shell:"+command); err != nil {
		return "", &BridgeError{Op: "shell " + command, Err: err}
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		return "", &BridgeError{Op: "shell " + command, Output: string(data), Err: err}
	}
	out := string(data)
	if b.journal != nil && strings.TrimSpace(out) != "" {
		b.journal.Append("stdout", "%s", strings.TrimSpace(out))
	}
	return out, nil
}

func (b *serverBridge) Devices() ([]DeviceEntry, error) {
	out, err := b.query("host:devices-l")
	if err != nil {
		return nil, err
	}
	return parseDeviceList(out), nil
}

func (b *serverBridge) GetProp(serial, key string) (string, error) {
	out, err := b.shellRaw(serial, "getprop "+key)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (b *serverBridge) Shell(serial, command string) (string, error) {
	return b.shellRaw(serial, command)
}

func (b *serverBridge) Install(serial, apkPath string) (string, error) {
	remote := path.Join("/data/local/tmp", path.Base(filepath.ToSlash(apkPath)))
	if err := b.Push(serial, apkPath, remote); err != nil {
		return "", err
	}
	defer b.shellRaw(serial, "rm "+remote)
	return b.shellRaw(serial, "pm install -r "+remote)
}

func (b *serverBridge) Uninstall(serial, pkg string, asUser0 bool) (string, error) {
	if asUser0 {
		return b.shellRaw(serial, "pm uninstall -k --user 0 "+pkg)
	}
	return b.shellRaw(serial, "pm uninstall "+pkg)
}

// Pull streams a device file through `cat`; adequate for screenshots and
// recordings, which are the only pulls this app performs.
func (b *serverBridge) Pull(serial, remotePath, localPath string) error {
	conn, err := b.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := sendRequest(conn, "host:transport:"+serial); err != nil {
		return &BridgeError{Op: "transport " + serial, Err: err}
	}
	if err := sendRequest(conn, "exec:cat "+remotePath); err != nil {
		return &BridgeError{Op: "pull " + remotePath, Err: err}
	}
	return writeStreamToFile(conn, localPath)
}

func writeStreamToFile(r io.Reader, localPath string) error {
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(localPath)
		return err
	}
	return nil
}

// Push streams a local file into `cat` on the device. Slower than the sync
// service but enough for single apk uploads.
func (b *serverBridge) Push(serial, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return &BridgeError{Op: "push " + localPath, Err: err}
	}
	defer f.Close()

	conn, err := b.dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Minute))

	if err := sendRequest(conn, "host:transport:"+serial); err != nil {
		return &BridgeError{Op: "transport " + serial, Err: err}
	}
	if err := sendRequest(conn, "exec:cat > "+remotePath); err != nil {
		return &BridgeError{Op: "push " + remotePath, Err: err}
	}
	if _, err := io.Copy(conn, f); err != nil {
		return &BridgeError{Op: "push " + remotePath, Err: err}
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite()
	}
	io.Copy(io.Discard, conn)
	return nil
}

func (b *serverBridge) TCPIP(serial string, port int) (string, error) {
	conn, err := b.dial()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := sendRequest(conn, "host:transport:"+serial); err != nil {
		return "", &BridgeError{Op: "transport " + serial, Err: err}
	}
	if err := sendRequest(conn, fmt.Sprintf("tcpip:%d", port)); err != nil {
		return "", &BridgeError{Op: "tcpip", Err: err}
	}
	data, _ := io.ReadAll(conn)
	return string(data), nil
}

func (b *serverBridge) Pair(address, code string) (string, error) {
	return b.query(fmt.Sprintf("host:pair:%s:%s", code, address))
}

func (b *serverBridge) Connect(address string) (string, error) {
	return b.query("host:connect:" + address)
}

func (b *serverBridge) Disconnect(address string) (string, error) {
	return b.query("host:disconnect:" + address)
}

func (b *serverBridge) MDNSServices() (string, error) {
	return b.query("host:mdns:services")
}

func (b *serverBridge) StartShell(serial string, args ...string) (*exec.Cmd, error) {
	return nil, &BridgeError{Op: "start-shell", Err: fmt.Errorf("long-lived shells are not supported over the server bridge")}
}
