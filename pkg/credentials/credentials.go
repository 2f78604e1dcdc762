package credentials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/careline/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0

	// TokenEnvVar overrides any stored session token.
	TokenEnvVar = "CARELINE_TOKEN"
)

// ErrNoToken is returned by a TokenSource when no session token is
// available for its gateway.
var ErrNoToken = errors.New("no session token stored, run \"careline auth\" first")

// Manager manages reading and writing credentials.toml in the .careline/
// directory. Tokens are keyed by the gateway URL they were issued for.
type Manager struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it is
// used as the .careline/ directory; otherwise the standard dotdir resolution
// applies.
func NewManager(override string) (*Manager, error) {
	mgr := &Manager{}
	mgr.ddm = dotdir.NewManager()

	target, err := mgr.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	mgr.targetPath = filepath.Join(target, credentialsFile)

	return mgr, nil
}

// Load reads credentials.toml from the target directory.
// Returns an empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{
				Version:  currentVersion,
				Gateways: make(map[string]SessionCredential),
			}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.Gateways == nil {
		creds.Gateways = make(map[string]SessionCredential)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// SetToken stores the session token for the given gateway.
func (m *Manager) SetToken(gateway, token string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Gateways[gateway] = SessionCredential{
		Token:   token,
		SavedAt: time.Now().UTC().Truncate(time.Second),
	}

	return m.Save(creds)
}

// GetToken returns the stored session token for the given gateway.
// Returns an empty string if no token is stored.
func (m *Manager) GetToken(gateway string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	return creds.Gateways[gateway].Token, nil
}

// RemoveToken deletes the stored session token for a gateway.
func (m *Manager) RemoveToken(gateway string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	delete(creds.Gateways, gateway)

	return m.Save(creds)
}

// ListGateways returns the gateways that have stored tokens, sorted.
func (m *Manager) ListGateways() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	gateways := make([]string, 0, len(creds.Gateways))
	for name := range creds.Gateways {
		gateways = append(gateways, name)
	}

	sort.Strings(gateways)

	return gateways, nil
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

// TokenSource resolves the session token for one gateway, preferring the
// CARELINE_TOKEN environment variable over the stored token.
type TokenSource struct {
	mgr     *Manager
	gateway string
}

// NewTokenSource returns a TokenSource for gateway backed by mgr.
func NewTokenSource(mgr *Manager, gateway string) *TokenSource {
	return &TokenSource{mgr: mgr, gateway: gateway}
}

// Token returns the session token, or ErrNoToken when none is available.
func (s *TokenSource) Token(_ context.Context) (string, error) {
	if tok := os.Getenv(TokenEnvVar); tok != "" {
		return tok, nil
	}

	tok, err := s.mgr.GetToken(s.gateway)
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", ErrNoToken
	}

	return tok, nil
}
