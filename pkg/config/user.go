package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// UserFileName is the name of the user data file in the mio home directory.
const UserFileName = "user.yml"

// User is the marketplace identity of the person running mio.
type User struct {
	Authenticated bool   `yaml:"authenticated"`
	Username      string `yaml:"username"`
	Token         string `yaml:"token,omitempty"`

	// Password is supplied on the command line or through MIO_AUTHENTICATION_PASSWORD.
	// It is never persisted.
	Password string `yaml:"-"`
}

// UserFilePath returns the user data path inside home.
func UserFilePath(home string) string {
	return filepath.Join(home, UserFileName)
}

// LoadUser reads user data. A missing file yields an unauthenticated user.
func LoadUser(path string) (*User, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &User{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user data at '%s': %w", path, err)
	}
	var u User
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to load user data at '%s': %w", path, err)
	}
	if u.Username != "" && !IsValidName(u.Username) {
		return nil, fmt.Errorf("failed to load user data at '%s': invalid username '%s'", path, u.Username)
	}
	return &u, nil
}

// Save writes user data to path.
func (u *User) Save(path string) error {
	data, err := yaml.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode user data: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to save user data at '%s': %w", path, err)
	}
	return nil
}

// Logout forgets the token.
func (u *User) Logout() {
	u.Authenticated = false
	u.Token = ""
}
