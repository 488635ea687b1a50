package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaultsWhenNamesAbsent(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(fn, []byte("serial: /dev/ttyUSB0\nbaud_rate: 115200\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(fn)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Serial != "/dev/ttyUSB0" || c.BaudRate != 115200 {
		t.Errorf("Serial/BaudRate = %q/%d, want /dev/ttyUSB0/115200", c.Serial, c.BaudRate)
	}
	if c.Names == nil {
		t.Error("Names should be initialised to an empty map, got nil")
	}
}

func TestSeen_NewAddrTrueThenFalse(t *testing.T) {
	c := Default()
	if !c.Seen("01:145038") {
		t.Error("first sighting of an address should return true")
	}
	if c.Seen("01:145038") {
		t.Error("second sighting of the same address should return false")
	}
	if name, ok := c.Names["01:145038"]; !ok || name != "" {
		t.Errorf("Names[01:145038] = %q, %v, want \"\", true", name, ok)
	}
}

func TestSave_PreservesCommentsAndAppendsNewNamesOnly(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "config.yaml")
	original := "# my gateway\nserial: /dev/ttyUSB0\nnames:\n  \"01:145038\": \"Controller\" # the boss\n"
	if err := os.WriteFile(fn, []byte(original), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(fn)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	c.Seen("01:145038") // already known, must not be touched
	c.Seen("13:111111") // new, should be appended

	if err := c.Save(fn); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := os.ReadFile(fn)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got := string(out)

	if !strings.Contains(got, "# my gateway") {
		t.Errorf("Save should preserve the leading comment, got:\n%s", got)
	}
	if !strings.Contains(got, "the boss") {
		t.Errorf("Save should preserve the existing inline comment, got:\n%s", got)
	}
	if !strings.Contains(got, "13:111111") {
		t.Errorf("Save should append the newly-seen address, got:\n%s", got)
	}

	c2, err := Load(fn)
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if c2.Names["01:145038"] != "Controller" {
		t.Errorf("Names[01:145038] = %q, want Controller", c2.Names["01:145038"])
	}
	if _, ok := c2.Names["13:111111"]; !ok {
		t.Error("Names[13:111111] should have round-tripped")
	}
}

func TestSave_NoChangesSkipsWrite(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "config.yaml")
	original := "serial: /dev/ttyUSB0\nnames:\n  \"01:145038\": \"Controller\"\n"
	if err := os.WriteFile(fn, []byte(original), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	before, err := os.Stat(fn)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	c, err := Load(fn)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.Seen("01:145038") // already known: Save should have nothing to do

	if err := c.Save(fn); err != nil {
		t.Fatalf("Save: %v", err)
	}

	after, err := os.Stat(fn)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if before.ModTime() != after.ModTime() {
		t.Error("Save should not rewrite the file when nothing changed")
	}
}
