package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromFile_Valid(t *testing.T) {
	path := writeConfig(t, `
actor: billing
cache_ttl: 90s
legacy_procedures:
  visit:
    code: "PV-01"
    name: Parecer
  catheter:
    name: Cateter duplo lúmen
`)
	c := Default()
	if err := c.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if c.Actor != "billing" {
		t.Errorf("actor = %q", c.Actor)
	}
	if c.CacheTTL != 90*time.Second {
		t.Errorf("cache ttl = %s", c.CacheTTL)
	}
	if c.Legacy.Visit.Code != "PV-01" || c.Legacy.Visit.Name != "Parecer" {
		t.Errorf("visit = %+v", c.Legacy.Visit)
	}
	if c.Legacy.Catheter.Code != "LEGCAT" || c.Legacy.Catheter.Name != "Cateter duplo lúmen" {
		t.Errorf("catheter = %+v", c.Legacy.Catheter)
	}
	if c.Legacy.Hemodialysis.Code != "LEGHD" {
		t.Errorf("hemodialysis kept default? got %+v", c.Legacy.Hemodialysis)
	}
}

func TestLoadFromFile_DuplicateLegacyCode(t *testing.T) {
	path := writeConfig(t, `
legacy_procedures:
  visit:
    code: leg-hd
`)
	c := Default()
	if err := c.LoadFromFile(path); err == nil {
		t.Fatal("expected error for code shared with hemodialysis")
	}
}

func TestLoadFromFile_BadTTL(t *testing.T) {
	for _, ttl := range []string{"soon", "-1m"} {
		c := Default()
		if err := c.LoadFromFile(writeConfig(t, "cache_ttl: "+ttl+"\n")); err == nil {
			t.Errorf("cache_ttl %q: expected error", ttl)
		}
	}
}

func TestLoadFromFile_EmptyKeepsDefaults(t *testing.T) {
	c := Default()
	if err := c.LoadFromFile(writeConfig(t, "{}\n")); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if c.CacheTTL != DefaultCacheTTL {
		t.Errorf("cache ttl = %s", c.CacheTTL)
	}
	if c.Legacy.HDFC.Code != "LEGHDFC" {
		t.Errorf("hdfc = %+v", c.Legacy.HDFC)
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	c := Default()
	if err := c.LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	var c Config
	if err := c.Validate(); err == nil {
		t.Error("expected error for empty file path")
	}
	c.FilePath = "/nonexistent/file.parquet"
	if err := c.Validate(); err == nil {
		t.Error("expected error for missing file")
	}
	c.FilePath = writeConfig(t, "x")
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := c.ValidateWithDSN(); err == nil {
		t.Error("expected error for missing DSN")
	}
	c.DSN = "postgres://localhost/hdprod"
	if err := c.ValidateWithDSN(); err != nil {
		t.Errorf("ValidateWithDSN: %v", err)
	}
}

func TestLevel(t *testing.T) {
	c := Config{LogLevel: "debug"}
	lvl, err := c.Level()
	if err != nil || lvl.String() != "debug" {
		t.Errorf("Level() = %v, %v", lvl, err)
	}
	c.LogLevel = "loud"
	if _, err := c.Level(); err == nil {
		t.Error("expected error for unknown level")
	}
}
