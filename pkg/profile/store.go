package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opensnatch/snatchd/pkg/types"
)

// Store manages the profiles document and the singleton settings files.
// The profiles file is re-read on every operation and rewritten whole
// (write-temp-then-rename) on every mutation; callers that need
// read-modify-write go through Upsert/Delete.
type Store struct {
	profilesPath   string
	sshKeyPath     string
	telegramPath   string
	cloudflarePath string
}

// NewStore creates a profile store rooted at dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Store{
		profilesPath:   filepath.Join(dataDir, "profiles.json"),
		sshKeyPath:     filepath.Join(dataDir, "default_ssh_key.json"),
		telegramPath:   filepath.Join(dataDir, "telegram.json"),
		cloudflarePath: filepath.Join(dataDir, "cloudflare.json"),
	}, nil
}

// load reads the profiles document from disk. A missing or empty file
// yields an empty document.
func (s *Store) load() (*types.ProfileFile, error) {
	pf := &types.ProfileFile{Profiles: map[string]*types.Profile{}}
	data, err := os.ReadFile(s.profilesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return pf, nil
		}
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}
	if len(data) == 0 {
		return pf, nil
	}
	if err := json.Unmarshal(data, pf); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file: %w", err)
	}
	if pf.Profiles == nil {
		pf.Profiles = map[string]*types.Profile{}
	}
	return pf, nil
}

// save rewrites the profiles document atomically.
func (s *Store) save(pf *types.ProfileFile) error {
	return writeJSONAtomic(s.profilesPath, pf)
}

// healOrder returns the effective alias order: the stored order with
// unknown aliases dropped, then any aliases missing from the order
// appended in case-insensitive lexical order. The second return value
// reports whether healing changed anything.
func healOrder(pf *types.ProfileFile) ([]string, bool) {
	seen := make(map[string]bool, len(pf.Order))
	ordered := make([]string, 0, len(pf.Profiles))
	for _, alias := range pf.Order {
		if _, ok := pf.Profiles[alias]; ok && !seen[alias] {
			ordered = append(ordered, alias)
			seen[alias] = true
		}
	}
	var missing []string
	for alias := range pf.Profiles {
		if !seen[alias] {
			missing = append(missing, alias)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		return strings.ToLower(missing[i]) < strings.ToLower(missing[j])
	})
	healed := append(ordered, missing...)
	changed := len(healed) != len(pf.Order)
	if !changed {
		for i := range healed {
			if healed[i] != pf.Order[i] {
				changed = true
				break
			}
		}
	}
	return healed, changed
}

// List returns the aliases in effective order, persisting the healed
// order when it differs from the stored one.
func (s *Store) List() ([]string, error) {
	pf, err := s.load()
	if err != nil {
		return nil, err
	}
	order, changed := healOrder(pf)
	if changed {
		pf.Order = order
		if err := s.save(pf); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Get returns the profile stored under alias.
func (s *Store) Get(alias string) (*types.Profile, error) {
	pf, err := s.load()
	if err != nil {
		return nil, err
	}
	p, ok := pf.Profiles[alias]
	if !ok {
		return nil, fmt.Errorf("profile not found: %s", alias)
	}
	return p, nil
}

// Upsert merges patch into the profile stored under alias, creating it
// when absent. New profiles are appended to the order. When the patch
// carries no SSH key, the global default key file fills it in.
func (s *Store) Upsert(alias string, patch *types.Profile) error {
	pf, err := s.load()
	if err != nil {
		return err
	}
	existing, ok := pf.Profiles[alias]
	if !ok {
		existing = &types.Profile{}
		pf.Profiles[alias] = existing
		pf.Order = append(pf.Order, alias)
	}
	mergeProfile(existing, patch)
	if existing.DefaultSSHPublicKey == "" {
		if key, err := s.DefaultSSHKey(); err == nil && key.Key != "" {
			existing.DefaultSSHPublicKey = key.Key
		}
	}
	return s.save(pf)
}

// mergeProfile copies the non-empty fields of patch over dst.
func mergeProfile(dst, patch *types.Profile) {
	if patch.TenancyID != "" {
		dst.TenancyID = patch.TenancyID
	}
	if patch.UserID != "" {
		dst.UserID = patch.UserID
	}
	if patch.Fingerprint != "" {
		dst.Fingerprint = patch.Fingerprint
	}
	if patch.Region != "" {
		dst.Region = patch.Region
	}
	if patch.KeyContent != "" {
		dst.KeyContent = patch.KeyContent
	}
	if patch.KeyFile != "" {
		dst.KeyFile = patch.KeyFile
	}
	if patch.Proxy != "" {
		dst.Proxy = patch.Proxy
	}
	if patch.DefaultSSHPublicKey != "" {
		dst.DefaultSSHPublicKey = patch.DefaultSSHPublicKey
	}
	if patch.DefaultSubnetOCID != "" {
		dst.DefaultSubnetOCID = patch.DefaultSubnetOCID
	}
}

// Delete removes alias from both the profile map and the order.
func (s *Store) Delete(alias string) error {
	pf, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := pf.Profiles[alias]; !ok {
		return fmt.Errorf("profile not found: %s", alias)
	}
	delete(pf.Profiles, alias)
	order := pf.Order[:0]
	for _, a := range pf.Order {
		if a != alias {
			order = append(order, a)
		}
	}
	pf.Order = order
	return s.save(pf)
}

// SetOrder persists a user-supplied display order. Unknown aliases are
// dropped; omitted ones are healed back on the next read.
func (s *Store) SetOrder(order []string) error {
	pf, err := s.load()
	if err != nil {
		return err
	}
	pf.Order = order
	pf.Order, _ = healOrder(pf)
	return s.save(pf)
}

// SetRememberedSubnet records the bootstrap result for alias.
func (s *Store) SetRememberedSubnet(alias, subnetID string) error {
	pf, err := s.load()
	if err != nil {
		return err
	}
	p, ok := pf.Profiles[alias]
	if !ok {
		return fmt.Errorf("profile not found: %s", alias)
	}
	p.DefaultSubnetOCID = subnetID
	return s.save(pf)
}

// DefaultSSHKey reads the global default SSH public key file.
func (s *Store) DefaultSSHKey() (*types.DefaultSSHKey, error) {
	var key types.DefaultSSHKey
	if err := readJSON(s.sshKeyPath, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// SetDefaultSSHKey writes the global default SSH public key file.
func (s *Store) SetDefaultSSHKey(key *types.DefaultSSHKey) error {
	return writeJSONAtomic(s.sshKeyPath, key)
}

// TelegramSettings reads the Telegram notification settings.
func (s *Store) TelegramSettings() (*types.TelegramSettings, error) {
	var tg types.TelegramSettings
	if err := readJSON(s.telegramPath, &tg); err != nil {
		return nil, err
	}
	return &tg, nil
}

// SetTelegramSettings writes the Telegram notification settings.
func (s *Store) SetTelegramSettings(tg *types.TelegramSettings) error {
	return writeJSONAtomic(s.telegramPath, tg)
}

// CloudflareSettings reads the Cloudflare DNS settings.
func (s *Store) CloudflareSettings() (*types.CloudflareSettings, error) {
	var cf types.CloudflareSettings
	if err := readJSON(s.cloudflarePath, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// SetCloudflareSettings writes the Cloudflare DNS settings.
func (s *Store) SetCloudflareSettings(cf *types.CloudflareSettings) error {
	return writeJSONAtomic(s.cloudflarePath, cf)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
