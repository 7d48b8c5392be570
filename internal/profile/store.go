package profile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Store reads and writes the auth profile file. All reads are fail-soft:
// a missing or malformed file degrades to an empty Profile so the rest of
// the system can still run unauthenticated.
type Store struct {
	path string
}

// NewStore creates a Store for the auth file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the auth file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the auth file and assembles a Profile. Missing file, malformed
// JSON, a malformed credential entry, or a malformed location cookie are all
// logged and treated as absent data.
func (s *Store) Load() Profile {
	raw, err := s.readFile()
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("could not load auth file, using defaults", "path", s.path, "error", err)
		}
		return Profile{}
	}

	var p Profile

	if encoded, ok := raw.LocalStorage[credentialKey]; ok {
		var cred Credential
		if err := json.Unmarshal([]byte(encoded), &cred); err != nil {
			slog.Warn("malformed credential in auth file, ignoring", "path", s.path, "error", err)
		} else {
			p.Credential = &cred
		}
	}

	// Explicit structured location wins over the cookie-derived form.
	switch {
	case raw.Location != nil:
		loc := *raw.Location
		p.Location = &loc
	default:
		if cookie, ok := raw.Cookies[locationCookieKey]; ok {
			p.Location = parseLocationCookie(cookie)
		}
	}

	return p
}

// Save overlays the given patches onto the persisted file and writes the
// union back. A nil patch leaves the corresponding half untouched, so saving
// only a location never clobbers a stored credential and vice versa.
func (s *Store) Save(cred *Credential, loc *Location) error {
	raw, err := s.readFile()
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("could not reload auth file before save, starting fresh", "path", s.path, "error", err)
	}

	if cred != nil {
		encoded, err := json.Marshal(cred)
		if err != nil {
			return fmt.Errorf("encoding credential: %w", err)
		}
		if raw.LocalStorage == nil {
			raw.LocalStorage = make(map[string]string)
		}
		raw.LocalStorage[credentialKey] = string(encoded)
	}

	if loc != nil {
		l := *loc
		raw.Location = &l
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding auth file: %w", err)
	}

	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

func (s *Store) readFile() (authFile, error) {
	var raw authFile
	data, err := os.ReadFile(s.path)
	if err != nil {
		return authFile{}, err
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return authFile{}, fmt.Errorf("parsing auth file: %w", err)
	}
	return raw, nil
}

// locationCookie mirrors the __mo_da cookie payload set by the storefront.
type locationCookie struct {
	Warehouse  string `json:"warehouse"`
	PostalCode string `json:"postalCode"`
}

// parseLocationCookie decodes the URL-encoded location cookie. Only values
// that URL-decode to JSON-like text are parsed; anything else is silently
// ignored, matching the storefront's own leniency.
func parseLocationCookie(raw string) *Location {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		decoded = raw
	}
	if !strings.Contains(decoded, "{") {
		return nil
	}

	var c locationCookie
	if err := json.Unmarshal([]byte(decoded), &c); err != nil {
		slog.Warn("malformed location cookie, ignoring", "error", err)
		return nil
	}
	if c.Warehouse == "" && c.PostalCode == "" {
		return nil
	}
	return &Location{PostalCode: c.PostalCode, WarehouseID: c.Warehouse}
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
