package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const (
	installSuccessMarker = "Success"
	installConflictCode  = "INSTALL_FAILED_UPDATE_INCOMPATIBLE"
	maxRedirectHops      = 5
	downloadTimeout      = 5 * time.Minute
)

var conflictPackageRe = regexp.MustCompile(`Package ([\w.]+) signatures`)

// resolveDownloadURL turns a catalog URL into a direct APK link. GitHub
// release pages go through the API so the right asset can be picked;
// anything else passes through untouched.
func resolveDownloadURL(client *http.Client, rawURL, packageName string) (string, error) {
	apiURL, ok := githubAPIURL(rawURL)
	if !ok {
		return rawURL, nil
	}

	resp, err := client.Get(apiURL)
	if err != nil {
		return "", fmt.Errorf("release lookup failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release lookup failed: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("release lookup failed: %w", err)
	}

	assets := gjson.GetBytes(body, "assets")
	if !assets.Exists() || len(assets.Array()) == 0 {
		return "", fmt.Errorf("release has no assets")
	}

	return pickReleaseAsset(assets.Array(), packageName)
}

// githubAPIURL converts github.com release page URLs to their API
// equivalents; ok is false for everything else.
func githubAPIURL(rawURL string) (string, bool) {
	trimmed := strings.TrimPrefix(rawURL, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")
	if !strings.HasPrefix(trimmed, "github.com/") {
		return "", false
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(trimmed, "github.com/"), "/"), "/")
	if len(parts) < 3 || parts[2] != "releases" {
		return "", false
	}
	owner, repo := parts[0], parts[1]

	switch {
	case len(parts) >= 4 && parts[3] == "latest":
		return fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/latest", owner, repo), true
	case len(parts) >= 5 && parts[3] == "tag":
		return fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/tags/%s", owner, repo, parts[4]), true
	default:
		return "", false
	}
}

// pickReleaseAsset applies the asset preference order: a name exactly equal
// to the package, then the first apk, then the first asset of any kind.
func pickReleaseAsset(assets []gjson.Result, packageName string) (string, error) {
	if packageName != "" {
		for _, asset := range assets {
			if asset.Get("name").String() == packageName {
				return asset.Get("browser_download_url").String(), nil
			}
		}
	}
	for _, asset := range assets {
		if strings.HasSuffix(asset.Get("name").String(), ".apk") {
			return asset.Get("browser_download_url").String(), nil
		}
	}
	return assets[0].Get("browser_download_url").String(), nil
}

func newDownloadClient() *http.Client {
	return &http.Client{
		Timeout: downloadTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirectHops {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// downloadFile fetches url into dest. On macOS a TLS handshake failure gets
// one retry through the system curl, whose trust store is independent.
func downloadFile(client *http.Client, url, dest string) error {
	resp, err := client.Get(url)
	if err != nil {
		if runtime.GOOS == "darwin" && isTLSError(err) {
			return curlDownload(url, dest)
		}
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(dest)
		return fmt.Errorf("download failed: %w", err)
	}
	return nil
}

func isTLSError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "tls:") || strings.Contains(msg, "certificate")
}

func curlDownload(url, dest string) error {
	cmd := exec.Command("curl", "-fsSL", "-o", dest, url)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("curl fallback failed: %w, output: %s", err, string(out))
	}
	return nil
}

// classifyInstallOutput inspects raw install output.
func classifyInstallOutput(output string) (ok bool, conflict bool) {
	ok = strings.Contains(output, installSuccessMarker)
	conflict = strings.Contains(output, installConflictCode)
	return ok, conflict
}

// parseConflictPackage extracts the package blamed by a signature mismatch.
func parseConflictPackage(output string) string {
	if m := conflictPackageRe.FindStringSubmatch(output); m != nil {
		return m[1]
	}
	return ""
}

// installWithRecovery installs an apk and, on a signature conflict, asks for
// confirmation, uninstalls the conflicting package and retries exactly once.
func (a *App) installWithRecovery(serial, apkPath, pkgHint, appName string, confirm func(pkg string) bool) InstallResult {
	result := InstallResult{App: appName}

	out, err := a.bridge.Install(serial, apkPath)
	ok, conflict := classifyInstallOutput(out)
	if ok {
		result.Ok = true
		return result
	}
	if !conflict {
		result.Detail = installFailureDetail(out, err)
		return result
	}

	pkg := parseConflictPackage(out)
	if pkg == "" {
		pkg = pkgHint
	}
	if pkg == "" || confirm == nil || !confirm(pkg) {
		result.Detail = installFailureDetail(out, err)
		return result
	}

	a.journal.Append("status", "Removing conflicting package %s", pkg)
	if _, err := a.bridge.Uninstall(serial, pkg, false); err != nil {
		result.Detail = fmt.Sprintf("could not remove %s: %v", pkg, err)
		return result
	}

	out, err = a.bridge.Install(serial, apkPath)
	if ok, _ := classifyInstallOutput(out); ok {
		result.Ok = true
		result.Conflict = true
		return result
	}
	result.Conflict = true
	result.Detail = installFailureDetail(out, err)
	return result
}

func installFailureDetail(output string, err error) string {
	detail := strings.TrimSpace(output)
	if detail == "" && err != nil {
		detail = err.Error()
	}
	return detail
}

// confirmConflictRemoval asks the user whether the conflicting package may
// be uninstalled. Headless runs decline.
func (a *App) confirmConflictRemoval(pkg string) bool {
	if a.ctx == nil {
		return false
	}
	choice, err := wailsRuntime.MessageDialog(a.ctx, wailsRuntime.MessageDialogOptions{
		Type:    wailsRuntime.QuestionDialog,
		Title:   "Signature conflict",
		Message: fmt.Sprintf("%s is already installed with a different signature. Uninstall it and retry?", pkg),
	})
	return err == nil && choice == "Yes"
}

// InstallSelectedApps downloads and installs every selected catalog entry.
// Per-item failures never abort the batch.
func (a *App) InstallSelectedApps() ([]InstallResult, error) {
	if err := a.beginOperation("install"); err != nil {
		return nil, err
	}
	defer a.endOperation()

	device, err := a.requireActiveDevice()
	if err != nil {
		return nil, err
	}

	apps := a.selectedApps()
	if len(apps) == 0 {
		return nil, fmt.Errorf("no apps selected")
	}

	client := newDownloadClient()
	tmpDir, err := os.MkdirTemp("", "openpelo-apk-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	results := make([]InstallResult, 0, len(apps))
	for _, app := range apps {
		result := a.installCatalogApp(client, device.Serial, tmpDir, app)
		results = append(results, result)
		a.recordOperation(device.Serial, "install", app.Name, result.Ok, result.Detail)
		if result.Ok {
			a.journal.Append("status", "Installed %s", app.Name)
		} else {
			a.journal.Append("error", "Failed to install %s: %s", app.Name, result.Detail)
		}
	}

	a.updateConnectedStatus()
	return results, nil
}

func (a *App) installCatalogApp(client *http.Client, serial, tmpDir string, app CatalogApp) InstallResult {
	a.journal.Append("status", "Resolving download for %s...", app.Name)
	url, err := resolveDownloadURL(client, app.URL, app.PackageName)
	if err != nil {
		InstallLog().Str("app", app.Name).Err(err).Msg("url resolution failed")
		return InstallResult{App: app.Name, Detail: err.Error()}
	}

	apkPath := filepath.Join(tmpDir, sanitizeFileName(app.Name)+".apk")
	a.journal.Append("status", "Downloading %s...", app.Name)
	if err := downloadFile(client, url, apkPath); err != nil {
		InstallLog().Str("app", app.Name).Err(err).Msg("download failed")
		return InstallResult{App: app.Name, Detail: err.Error()}
	}

	a.journal.Append("status", "Installing %s...", app.Name)
	return a.installWithRecovery(serial, apkPath, app.PackageName, app.Name, a.confirmConflictRemoval)
}

// InstallLocalAPK installs an apk picked from the local filesystem.
func (a *App) InstallLocalAPK(path string) (InstallResult, error) {
	if err := a.beginOperation("install"); err != nil {
		return InstallResult{}, err
	}
	defer a.endOperation()

	device, err := a.requireActiveDevice()
	if err != nil {
		return InstallResult{}, err
	}
	if _, err := os.Stat(path); err != nil {
		return InstallResult{}, fmt.Errorf("apk not found: %w", err)
	}

	name := filepath.Base(path)
	a.journal.Append("status", "Installing %s...", name)
	result := a.installWithRecovery(device.Serial, path, "", name, a.confirmConflictRemoval)
	a.recordOperation(device.Serial, "install", name, result.Ok, result.Detail)
	return result, nil
}

// UninstallPackages removes the given packages from the active device.
// A failed standard uninstall escalates to pm uninstall for user 0; the
// batch always runs to completion and reports a tally.
func (a *App) UninstallPackages(packages []string) (UninstallSummary, error) {
	summary := UninstallSummary{Results: make(map[string]string)}

	if err := a.beginOperation("uninstall"); err != nil {
		return summary, err
	}
	defer a.endOperation()

	device, err := a.requireActiveDevice()
	if err != nil {
		return summary, err
	}

	for _, pkg := range packages {
		out, err := a.uninstallWithEscalation(device.Serial, pkg)
		summary.Results[pkg] = strings.TrimSpace(out)
		if err != nil {
			summary.Fail++
			a.journal.Append("error", "Failed to uninstall %s: %s", pkg, strings.TrimSpace(out))
		} else {
			summary.Success++
			a.journal.Append("status", "Uninstalled %s", pkg)
		}
		a.recordOperation(device.Serial, "uninstall", pkg, err == nil, strings.TrimSpace(out))
	}

	return summary, nil
}

func (a *App) uninstallWithEscalation(serial, pkg string) (string, error) {
	out, err := a.bridge.Uninstall(serial, pkg, false)
	if err == nil && !strings.Contains(out, "Failure") {
		return out, nil
	}

	InstallLog().Str("package", pkg).Msg("standard uninstall failed, trying pm uninstall --user 0")
	out2, err2 := a.bridge.Uninstall(serial, pkg, true)
	if err2 != nil || strings.Contains(out2, "Failure") {
		if err2 == nil {
			err2 = fmt.Errorf("failed to uninstall: %s", strings.TrimSpace(out2))
		}
		return out2, err2
	}
	return out2, nil
}

func sanitizeFileName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(name)
}
