package main

import (
	"testing"
)

func TestFilterCatalogForABI(t *testing.T) {
	all := []CatalogApp{
		{Name: "Player 64", ABI: "arm64-v8a"},
		{Name: "Player 32", ABI: "armeabi-v7a"},
		{Name: "Untagged"},
	}

	tests := []struct {
		name string
		abi  string
		want []string
	}{
		{"32-bit device sees only 32-bit builds", "armeabi-v7a", []string{"Player 32"}},
		{"64-bit device sees 64-bit builds", "arm64-v8a", []string{"Player 64"}},
		{"other abi defaults to 64-bit", "x86_64", []string{"Player 64"}},
		{"unknown abi defaults to 64-bit", "", []string{"Player 64"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterCatalogForABI(all, tt.abi)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d: %+v", len(got), len(tt.want), got)
			}
			for i, name := range tt.want {
				if got[i].Name != name {
					t.Errorf("entry %d = %q, want %q", i, got[i].Name, name)
				}
			}
		})
	}
}

func TestFilterCatalogForABIClearsSelection(t *testing.T) {
	all := []CatalogApp{{Name: "Player 64", ABI: "arm64-v8a", Selected: true}}
	got := filterCatalogForABI(all, "arm64-v8a")
	if len(got) != 1 || got[0].Selected {
		t.Errorf("expected selection cleared on reload, got %+v", got)
	}
}

func TestSetAppSelected(t *testing.T) {
	app := newTestApp(&fakeBridge{})
	app.catalogMu.Lock()
	app.catalog = []CatalogApp{
		{Name: "Player 64", ABI: "arm64-v8a"},
		{Name: "Browser", ABI: "arm64-v8a"},
	}
	app.catalogMu.Unlock()

	app.SetAppSelected("Browser", true)

	selected := app.selectedApps()
	if len(selected) != 1 || selected[0].Name != "Browser" {
		t.Errorf("unexpected selection: %+v", selected)
	}

	app.SetAppSelected("Browser", false)
	if got := app.selectedApps(); len(got) != 0 {
		t.Errorf("expected empty selection, got %+v", got)
	}
}
