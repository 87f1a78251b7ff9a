package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/mirajehossain/evolvex/internal/version"
)

var (
	ErrLocationMissing     = errors.New("migration location does not exist")
	ErrDuplicateVersion    = errors.New("duplicate migration version")
	ErrInvalidScriptName   = errors.New("invalid migration script name")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
)

// Loader discovers migration scripts under a list of locations and returns
// them in strictly ascending version order. Files that lack the configured
// prefix or the configured suffix are ignored, which allows README-style files
// to live next to migrations; files that look like migrations but fail to
// parse are fatal.
type Loader struct {
	Locations []string
	Prefix    string
	Separator string
	Suffix    string
	Encoding  string
	FS        fs.FS // non-nil to scan an embedded filesystem instead of disk
}

func (l *Loader) Scan() ([]*Script, error) {
	enc, err := resolveEncoding(l.Encoding)
	if err != nil {
		return nil, err
	}
	var out []*Script
	for _, loc := range l.Locations {
		entries, err := l.readDir(loc)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrLocationMissing, loc)
			}
			return nil, fmt.Errorf("scan location %s: %w", loc, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			sc, ok, err := l.parseName(e.Name())
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			sc.Path = l.joinPath(loc, e.Name())
			sc.fsys = l.FS
			sc.enc = enc
			out = append(out, sc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Version.Less(out[j].Version)
	})
	for i := 1; i < len(out); i++ {
		if out[i].Version.Compare(out[i-1].Version) == 0 {
			return nil, fmt.Errorf("%w: %s and %s", ErrDuplicateVersion, out[i-1].Name, out[i].Name)
		}
	}
	return out, nil
}

func (l *Loader) readDir(loc string) ([]fs.DirEntry, error) {
	if l.FS != nil {
		return fs.ReadDir(l.FS, loc)
	}
	return os.ReadDir(loc)
}

func (l *Loader) joinPath(loc, name string) string {
	if l.FS != nil {
		// fs paths are always slash-separated
		return loc + "/" + name
	}
	return filepath.Join(loc, name)
}

// parseName splits <prefix><version><separator><description><suffix>. The
// second return is false when the file is not a migration candidate at all.
func (l *Loader) parseName(name string) (*Script, bool, error) {
	if len(name) < len(l.Prefix)+len(l.Suffix) {
		return nil, false, nil
	}
	if !strings.HasPrefix(name, l.Prefix) || !strings.HasSuffix(name, l.Suffix) {
		return nil, false, nil
	}
	core := name[len(l.Prefix) : len(name)-len(l.Suffix)]
	i := strings.Index(core, l.Separator)
	if i <= 0 {
		return nil, false, fmt.Errorf("%w: %s (missing separator %q)", ErrInvalidScriptName, name, l.Separator)
	}
	rawVersion := core[:i]
	description := core[i+len(l.Separator):]
	if description == "" {
		return nil, false, fmt.Errorf("%w: %s (missing description)", ErrInvalidScriptName, name)
	}
	v, err := version.Parse(rawVersion)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrInvalidScriptName, name, err)
	}
	return &Script{
		Version:     v,
		Name:        name,
		Description: strings.ReplaceAll(description, "_", " "),
	}, true, nil
}

func resolveEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	case "utf-16", "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
	}
}
