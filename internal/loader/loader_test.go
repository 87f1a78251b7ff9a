package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/mirajehossain/evolvex/internal/placeholder"
)

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func defaultLoader(locations ...string) *Loader {
	return &Loader{
		Locations: locations,
		Prefix:    "V",
		Separator: "__",
		Suffix:    ".sql",
	}
}

func TestScanOrdersByVersion(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "V2__add_users.sql", "CREATE TABLE users(id INT);")
	writeScript(t, dir, "V1__init.sql", "CREATE TABLE t(id INT);")
	writeScript(t, dir, "V1.2__patch.sql", "ALTER TABLE t ADD c INT;")
	writeScript(t, dir, "README.md", "not a migration")
	writeScript(t, dir, "helper.sql", "SELECT 1;") // no prefix, ignored

	scripts, err := defaultLoader(dir).Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scripts) != 3 {
		t.Fatalf("expected 3 scripts, got %d", len(scripts))
	}
	got := []string{scripts[0].Name, scripts[1].Name, scripts[2].Name}
	want := []string{"V1__init.sql", "V1.2__patch.sql", "V2__add_users.sql"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v want %v", got, want)
		}
	}
	if scripts[2].Description != "add users" {
		t.Fatalf("description mismatch: %q", scripts[2].Description)
	}
}

func TestScanDuplicateVersionAcrossLocations(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	writeScript(t, a, "V1__init.sql", "SELECT 1;")
	writeScript(t, b, "V1.0__init_again.sql", "SELECT 2;")

	_, err := defaultLoader(a, b).Scan()
	if err == nil {
		t.Fatal("expected duplicate version error")
	}
	if !errors.Is(err, ErrDuplicateVersion) {
		t.Fatalf("expected ErrDuplicateVersion, got %v", err)
	}
}

func TestScanMissingLocation(t *testing.T) {
	_, err := defaultLoader(filepath.Join(t.TempDir(), "nope")).Scan()
	if !errors.Is(err, ErrLocationMissing) {
		t.Fatalf("expected ErrLocationMissing, got %v", err)
	}
}

func TestScanInvalidCandidateIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "Vone__init.sql", "SELECT 1;")
	_, err := defaultLoader(dir).Scan()
	if !errors.Is(err, ErrInvalidScriptName) {
		t.Fatalf("expected ErrInvalidScriptName, got %v", err)
	}

	dir2 := t.TempDir()
	writeScript(t, dir2, "V1_missing_separator.sql", "SELECT 1;")
	_, err = defaultLoader(dir2).Scan()
	if !errors.Is(err, ErrInvalidScriptName) {
		t.Fatalf("expected ErrInvalidScriptName, got %v", err)
	}
}

func TestScanEmbeddedFS(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/V1__init.sql": &fstest.MapFile{Data: []byte("CREATE TABLE t(id INT);")},
		"migrations/V2__more.sql": &fstest.MapFile{Data: []byte("CREATE TABLE u(id INT);")},
	}
	l := defaultLoader("migrations")
	l.FS = fsys
	scripts, err := l.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scripts) != 2 {
		t.Fatalf("expected 2 scripts, got %d", len(scripts))
	}
	body, err := scripts[0].Body()
	if err != nil {
		t.Fatalf("body: %v", err)
	}
	if body != "CREATE TABLE t(id INT);" {
		t.Fatalf("body mismatch: %q", body)
	}
}

func TestChecksumStableAndSubstituted(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "V1__init.sql", "CREATE TABLE ${schema}.t(id INT);")
	scripts, err := defaultLoader(dir).Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	ph := placeholder.New("${", "}", map[string]string{"schema": "app"})
	first, err := scripts[0].Checksum(ph)
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	again, err := scripts[0].Checksum(ph)
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	if first != again {
		t.Fatal("checksum not stable")
	}
	other, err := scripts[0].Checksum(placeholder.New("${", "}", map[string]string{"schema": "prod"}))
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	if first == other {
		t.Fatal("checksum ignores placeholder values")
	}
}

func TestScanRejectsUnknownEncoding(t *testing.T) {
	l := defaultLoader(t.TempDir())
	l.Encoding = "EBCDIC"
	if _, err := l.Scan(); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Fatalf("expected ErrUnsupportedEncoding, got %v", err)
	}
}
