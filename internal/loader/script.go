package loader

import (
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/text/encoding"

	"github.com/mirajehossain/evolvex/internal/checksum"
	"github.com/mirajehossain/evolvex/internal/placeholder"
	"github.com/mirajehossain/evolvex/internal/version"
)

// Script is one discovered migration file. The body is read lazily on first
// use and cached; a Script is never mutated after discovery.
type Script struct {
	Version     version.Version
	Name        string // full file name, e.g. V1.2__add_users.sql
	Description string
	Path        string

	fsys   fs.FS // nil means local disk
	enc    encoding.Encoding
	body   string
	loaded bool
}

// Body returns the script content decoded from the configured encoding.
func (s *Script) Body() (string, error) {
	if s.loaded {
		return s.body, nil
	}
	var raw []byte
	var err error
	if s.fsys != nil {
		raw, err = fs.ReadFile(s.fsys, s.Path)
	} else {
		raw, err = os.ReadFile(s.Path)
	}
	if err != nil {
		return "", fmt.Errorf("read script %s: %w", s.Name, err)
	}
	if s.enc != nil {
		decoded, err := s.enc.NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("decode script %s: %w", s.Name, err)
		}
		raw = decoded
	}
	s.body = string(raw)
	s.loaded = true
	return s.body, nil
}

// Checksum hashes the placeholder-substituted body. The writer (Migrate) and
// the validator must agree on the substitution, so both go through here.
func (s *Script) Checksum(ph *placeholder.Replacer) (string, error) {
	body, err := s.Body()
	if err != nil {
		return "", err
	}
	return checksum.SHA256String(ph.Apply(body)), nil
}
