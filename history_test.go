package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestHistoryStoreRecordAndList(t *testing.T) {
	store, err := OpenHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenHistoryStore failed: %v", err)
	}
	defer store.Close()

	base := time.Now()
	records := []OperationRecord{
		{ID: uuid.New().String(), Time: base, Serial: "usb-a", Kind: "install", Subject: "Player", Ok: true},
		{ID: uuid.New().String(), Time: base.Add(time.Second), Serial: "usb-a", Kind: "uninstall", Subject: "com.old", Ok: false, Detail: "Failure"},
	}
	for _, rec := range records {
		if err := store.Record(rec); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	got, err := store.List(10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Kind != "uninstall" {
		t.Errorf("expected newest first, got %+v", got[0])
	}
	if got[1].Subject != "Player" || !got[1].Ok {
		t.Errorf("unexpected oldest record: %+v", got[1])
	}
}

func TestHistoryStoreListLimit(t *testing.T) {
	store, err := OpenHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenHistoryStore failed: %v", err)
	}
	defer store.Close()

	for i := 0; i < 5; i++ {
		rec := OperationRecord{
			ID:      uuid.New().String(),
			Time:    time.Now().Add(time.Duration(i) * time.Second),
			Serial:  "usb-a",
			Kind:    "install",
			Subject: "Player",
			Ok:      true,
		}
		if err := store.Record(rec); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	got, err := store.List(3)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected limit of 3, got %d", len(got))
	}
}
