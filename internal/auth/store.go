package auth

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// TokenStore persists the access/refresh token pair to a credentials file.
// Storage failures are logged and swallowed: the session then runs with
// in-memory tokens only instead of crashing.
type TokenStore struct {
	path string
	log  zerolog.Logger
}

// storedTokens is the on-disk credential format.
type storedTokens struct {
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
}

// NewTokenStore creates a store writing to the given file path.
func NewTokenStore(path string, log zerolog.Logger) *TokenStore {
	return &TokenStore{path: path, log: log}
}

// Load reads the persisted token pair. Missing or unreadable files yield
// empty tokens.
func (s *TokenStore) Load() (access, refresh string) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("unable to read credentials")
		}
		return "", ""
	}
	var st storedTokens
	if err := yaml.Unmarshal(data, &st); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("corrupt credentials file")
		return "", ""
	}
	return st.AccessToken, st.RefreshToken
}

// Save writes the token pair, creating the parent directory if needed.
func (s *TokenStore) Save(access, refresh string) {
	data, err := yaml.Marshal(storedTokens{AccessToken: access, RefreshToken: refresh})
	if err != nil {
		s.log.Warn().Err(err).Msg("unable to marshal credentials")
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("unable to create credentials directory")
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("unable to persist credentials")
	}
}

// Clear removes the credentials file.
func (s *TokenStore) Clear() {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("path", s.path).Msg("unable to remove credentials")
	}
}
