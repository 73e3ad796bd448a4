// Package credentials keeps the terminal client's access token on disk.
package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPath overrides the credentials file location.
const EnvPath = "CAMPUSCHAT_CREDENTIALS"

// Credentials is the signed-in state of the terminal client. It satisfies
// session.AuthContext.
type Credentials struct {
	Server      string    `toml:"server"`
	Username    string    `toml:"username"`
	AccessToken string    `toml:"access_token"`
	ExpiresAt   time.Time `toml:"expires_at"`
	Language    string    `toml:"language,omitempty"`
}

// IsAuthenticated reports whether a token is present and not yet expired.
func (c Credentials) IsAuthenticated() bool {
	if c.AccessToken == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || time.Now().Before(c.ExpiresAt)
}

// Token returns the bearer token.
func (c Credentials) Token() string {
	return c.AccessToken
}

// DefaultPath returns $CAMPUSCHAT_CREDENTIALS or the per-user config location.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvPath); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "campuschat", "credentials.toml"), nil
}

// Load reads the file at path. A missing file yields empty credentials.
func Load(path string) (Credentials, error) {
	var c Credentials
	if _, err := toml.DecodeFile(path, &c); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, nil
		}
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	return c, nil
}

// Save writes c to path with owner-only permissions.
func Save(path string, c Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open credentials: %w", err)
	}
	defer file.Close()

	// the file may predate this call with wider permissions
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("restrict credentials: %w", err)
	}

	fmt.Fprintln(file, "# campuschat credentials, do not share")
	if err := toml.NewEncoder(file).Encode(c); err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	return nil
}

// Remove deletes the file at path. Removing a missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}
