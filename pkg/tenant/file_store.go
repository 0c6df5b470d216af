package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"

	"github.com/samber/mo"

	"github.com/savaki/jonbot/pkg/models"
)

var teamIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FileStore keeps one JSON document per team under dir
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// path returns the document path for a team. An empty team id maps to the
// shared default document.
func (s *FileStore) path(teamID string) (string, error) {
	if teamID == "" {
		return filepath.Join(s.dir, "jonbot-config.json"), nil
	}
	if !teamIDPattern.MatchString(teamID) {
		return "", fmt.Errorf("invalid team id %q", teamID)
	}
	return filepath.Join(s.dir, "jonbot-config-"+teamID+".json"), nil
}

// Get reads the team's document. A missing or unreadable document is
// treated as unconfigured.
func (s *FileStore) Get(ctx context.Context, teamID string) (mo.Option[models.TenantConfig], error) {
	path, err := s.path(teamID)
	if err != nil {
		return mo.None[models.TenantConfig](), err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return mo.None[models.TenantConfig](), nil
	}
	if err != nil {
		return mo.None[models.TenantConfig](), fmt.Errorf("read config: %w", err)
	}

	var cfg models.TenantConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("Warning: ignoring unparseable config %s: %v", path, err)
		return mo.None[models.TenantConfig](), nil
	}
	return mo.Some(cfg), nil
}

// Put writes the team's document to a temporary file and renames it into
// place so readers never observe a partial write.
func (s *FileStore) Put(ctx context.Context, teamID string, cfg models.TenantConfig) error {
	path, err := s.path(teamID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}

	log.Printf("Saved config for team %q", teamID)
	return nil
}
