package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	screenshotRemotePath = "/sdcard/screenshot_tmp.png"
	previewRemotePath    = "/sdcard/preview_tmp.png"
	recordStopGrace      = 1 * time.Second
)

// TakeScreenshot captures the active device's screen into the configured
// save location and returns the local path.
func (a *App) TakeScreenshot() (string, error) {
	device, err := a.requireActiveDevice()
	if err != nil {
		return "", err
	}

	a.journal.Append("status", "Taking screenshot...")

	if out, err := a.bridge.Shell(device.Serial, "screencap -p "+screenshotRemotePath); err != nil {
		return "", fmt.Errorf("screencap failed: %w, output: %s", err, out)
	}
	defer a.bridge.Shell(device.Serial, "rm "+screenshotRemotePath)

	localPath := filepath.Join(a.saveLocation(), fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405")))
	if err := a.bridge.Pull(device.Serial, screenshotRemotePath, localPath); err != nil {
		return "", fmt.Errorf("failed to pull screenshot: %w", err)
	}

	MediaLog().Str("path", localPath).Msg("screenshot saved")
	a.journal.Append("status", "Screenshot saved to %s", localPath)
	return localPath, nil
}

// StartRecording starts a screen recording on the active device. The
// recording runs on its own goroutine and does not take the busy flag.
func (a *App) StartRecording() error {
	device, err := a.requireActiveDevice()
	if err != nil {
		return err
	}

	a.recordMu.Lock()
	if _, running := a.recordCmds[device.Serial]; running {
		a.recordMu.Unlock()
		return fmt.Errorf("recording already in progress for %s", device.Serial)
	}
	a.recordMu.Unlock()

	remote := fmt.Sprintf("/sdcard/recording_%s.mp4", time.Now().Format("20060102_150405"))
	cmd, err := a.bridge.StartShell(device.Serial, "screenrecord", remote)
	if err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}

	a.recordMu.Lock()
	a.recordCmds[device.Serial] = cmd
	a.recordPaths[device.Serial] = remote
	a.recordMu.Unlock()

	MediaLog().Str("serial", device.Serial).Str("remote", remote).Msg("recording started")
	a.journal.Append("status", "Recording started")
	a.emitEvent("recording-changed", true)
	return nil
}

// StopRecording stops the active device's recording, waits for the encoder
// to finalize the file, then pulls it into the save location.
func (a *App) StopRecording() (string, error) {
	device, err := a.requireActiveDevice()
	if err != nil {
		return "", err
	}

	a.recordMu.Lock()
	cmd, running := a.recordCmds[device.Serial]
	remote := a.recordPaths[device.Serial]
	delete(a.recordCmds, device.Serial)
	delete(a.recordPaths, device.Serial)
	a.recordMu.Unlock()

	if !running {
		return "", fmt.Errorf("no recording in progress for %s", device.Serial)
	}

	if cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
	}
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}

	// Let the encoder flush its trailer before pulling.
	time.Sleep(recordStopGrace)

	localPath := filepath.Join(a.saveLocation(), filepath.Base(remote))
	if err := a.bridge.Pull(device.Serial, remote, localPath); err != nil {
		return "", fmt.Errorf("failed to pull recording: %w", err)
	}
	a.bridge.Shell(device.Serial, "rm "+remote)

	MediaLog().Str("path", localPath).Msg("recording saved")
	a.journal.Append("status", "Recording saved to %s", localPath)
	a.emitEvent("recording-changed", false)
	return localPath, nil
}

func (a *App) stopAllRecordings() {
	a.recordMu.Lock()
	defer a.recordMu.Unlock()
	for serial, cmd := range a.recordCmds {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		delete(a.recordCmds, serial)
		delete(a.recordPaths, serial)
	}
}

// IsRecording reports whether the active device has a recording running.
func (a *App) IsRecording() bool {
	serial := a.GetActiveSerial()
	a.recordMu.Lock()
	defer a.recordMu.Unlock()
	_, running := a.recordCmds[serial]
	return running
}

// StartScreenPreview begins emitting base64 frames to the frontend. The next
// frame is captured only after the previous one was delivered.
func (a *App) StartScreenPreview() error {
	device, err := a.requireActiveDevice()
	if err != nil {
		return err
	}

	a.previewMu.Lock()
	if a.previewCancel != nil {
		a.previewMu.Unlock()
		return fmt.Errorf("preview already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.previewCancel = cancel
	a.previewMu.Unlock()

	MediaLog().Str("serial", device.Serial).Msg("preview started")

	go func() {
		defer func() {
			a.previewMu.Lock()
			a.previewCancel = nil
			a.previewMu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			frame, err := a.captureFrame(device.Serial)
			if err != nil {
				MediaLog().Err(err).Msg("preview frame failed")
				time.Sleep(1 * time.Second)
				continue
			}
			a.emitEvent("preview-frame", frame)
		}
	}()
	return nil
}

// StopScreenPreview cancels the preview loop.
func (a *App) StopScreenPreview() {
	a.previewMu.Lock()
	if a.previewCancel != nil {
		a.previewCancel()
		a.previewCancel = nil
	}
	a.previewMu.Unlock()
}

// captureFrame grabs one screen frame and returns it base64 encoded.
func (a *App) captureFrame(serial string) (string, error) {
	if out, err := a.bridge.Shell(serial, "screencap -p "+previewRemotePath); err != nil {
		return "", fmt.Errorf("screencap failed: %w, output: %s", err, out)
	}
	defer a.bridge.Shell(serial, "rm "+previewRemotePath)

	tmp, err := os.CreateTemp("", "openpelo-frame-*.png")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := a.bridge.Pull(serial, previewRemotePath, tmpPath); err != nil {
		return "", fmt.Errorf("failed to pull frame: %w", err)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
