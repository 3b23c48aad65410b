package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type guideFile struct {
	Steps []GuideStep `json:"steps"`
}

// LoadGuideSteps reads the setup guide for the given kind ("usb" or
// "wireless"). The documents are opaque to the backend; a missing file just
// yields an empty guide.
func (a *App) LoadGuideSteps(kind string) ([]GuideStep, error) {
	var name string
	switch kind {
	case "usb":
		name = "usb_debug_steps.json"
	case "wireless":
		name = "wireless_adb_steps.json"
	default:
		return nil, fmt.Errorf("unknown guide %q", kind)
	}

	data, err := os.ReadFile(filepath.Join(a.configDir, name))
	if err != nil {
		a.journal.Append("status", "No %s guide found", kind)
		return []GuideStep{}, nil
	}

	var file guideFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("guide %s is not valid JSON: %w", name, err)
	}
	return file.Steps, nil
}
