// Package settings persists the sync profile: repository coordinates,
// branch preferences, the device label, and the access token. The token
// can be sealed with a passphrase so the raw value never reaches disk.
package settings

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	bolt "go.etcd.io/bbolt"

	syncerrors "github.com/alexjbarnes/notesync/internal/errors"
)

const (
	// settingsDirPerm is the permission mode for the settings directory.
	settingsDirPerm = fs.FileMode(0o700)

	// settingsFilePerm is the permission mode for the settings database file.
	settingsFilePerm = fs.FileMode(0o600)

	// settingsOpenTimeout is the maximum time to wait for the bolt
	// database lock.
	settingsOpenTimeout = 5 * time.Second
)

var (
	profileBucket = []byte("profile")
	profileKey    = []byte("current")
)

// Profile is the stored sync profile. Exactly one of Token and
// SealedToken is populated on disk: saving with a passphrase seals the
// token and clears the raw value.
type Profile struct {
	Owner          string `json:"owner"`
	Repo           string `json:"repo"`
	Branch         string `json:"branch,omitempty"`
	FallbackBranch string `json:"fallbackBranch,omitempty"`
	Device         string `json:"device,omitempty"`

	Token       string `json:"token,omitempty"`
	SealedToken []byte `json:"sealedToken,omitempty"`
}

// Sealed reports whether the profile's token is passphrase-sealed.
func (p *Profile) Sealed() bool {
	return len(p.SealedToken) > 0
}

// Settings wraps a bbolt database holding the sync profile.
type Settings struct {
	db *bolt.DB
}

// DefaultPath returns the settings database location under the XDG data
// directory, creating parent directories as needed.
func DefaultPath() (string, error) {
	path, err := xdg.DataFile(filepath.Join("notesync", "settings.db"))
	if err != nil {
		return "", fmt.Errorf("resolving settings path: %w", err)
	}

	return path, nil
}

// Open opens the settings database at its default location, creating it
// if it does not exist.
func Open() (*Settings, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}

	return OpenAt(path)
}

// OpenAt opens a settings database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func OpenAt(path string) (*Settings, error) {
	if err := os.MkdirAll(filepath.Dir(path), settingsDirPerm); err != nil {
		return nil, fmt.Errorf("creating settings directory: %w", err)
	}

	db, err := bolt.Open(path, settingsFilePerm, &bolt.Options{Timeout: settingsOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening settings db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(profileBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing settings db: %w", err)
	}

	return &Settings{db: db}, nil
}

// Close closes the database.
func (s *Settings) Close() error {
	return s.db.Close()
}

// SaveProfile persists the profile. With a non-empty passphrase the
// token is sealed before writing so the raw value never reaches disk.
func (s *Settings) SaveProfile(p Profile, passphrase string) error {
	if passphrase != "" && p.Token != "" {
		sealed, err := SealToken(p.Token, passphrase)
		if err != nil {
			return fmt.Errorf("sealing token: %w", err)
		}

		p.SealedToken = sealed
		p.Token = ""
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}

		return tx.Bucket(profileBucket).Put(profileKey, data)
	})
}

// Profile returns the stored profile. A sealed token is recovered with
// the passphrase; without one the profile comes back with an empty
// Token and Sealed reporting true so the caller can prompt. Returns
// ErrNoProfile when nothing is stored and ErrWrongPassphrase when the
// passphrase does not unseal the token.
func (s *Settings) Profile(passphrase string) (*Profile, error) {
	var p *Profile

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(profileBucket).Get(profileKey)
		if v == nil {
			return nil
		}

		p = &Profile{}

		return json.Unmarshal(v, p)
	})
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}

	if p == nil {
		return nil, syncerrors.ErrNoProfile
	}

	if p.Sealed() && passphrase != "" {
		token, err := UnsealToken(p.SealedToken, passphrase)
		if err != nil {
			return nil, err
		}

		p.Token = token
	}

	return p, nil
}

// DeleteProfile removes the stored profile.
func (s *Settings) DeleteProfile() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(profileBucket).Delete(profileKey)
	})
}
