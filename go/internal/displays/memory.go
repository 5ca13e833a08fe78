package displays

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/signage/go/internal/models"
	"gopkg.in/yaml.v3"
)

// MemoryRepository keeps displays and menus in memory. It backs the gateway
// when no database is configured and is loaded from a YAML file.
type MemoryRepository struct {
	mu       sync.RWMutex
	displays map[string]models.Display
	menus    map[uuid.UUID]models.Menu
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		displays: make(map[string]models.Display),
		menus:    make(map[uuid.UUID]models.Menu),
	}
}

// PutMenu stores or replaces a menu
func (m *MemoryRepository) PutMenu(menu models.Menu) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.menus[menu.ID] = menu
}

// PutDisplay stores or replaces a display, keyed by public identifier
func (m *MemoryRepository) PutDisplay(display models.Display) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.displays[display.PublicID] = display
}

// GetDisplayByPublicID implements DisplaysRepository
func (m *MemoryRepository) GetDisplayByPublicID(_ context.Context, publicID string) (*models.Display, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.displays[publicID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDisplayNotFound, publicID)
	}
	d.MenuIDs = append([]uuid.UUID(nil), d.MenuIDs...)
	return &d, nil
}

// ListMenusForDisplay implements DisplaysRepository
func (m *MemoryRepository) ListMenusForDisplay(_ context.Context, displayID uuid.UUID) ([]models.Menu, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.displays {
		if d.ID != displayID {
			continue
		}
		menus := make([]models.Menu, 0, len(d.MenuIDs))
		for _, id := range d.MenuIDs {
			menu, ok := m.menus[id]
			if !ok {
				return nil, fmt.Errorf("menu %s referenced by display %s does not exist", id, d.PublicID)
			}
			menu.Images = append([]models.ImageRef(nil), menu.Images...)
			menus = append(menus, menu)
		}
		return menus, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDisplayNotFound, displayID)
}

// fileConfig is the on-disk layout read by LoadMemoryRepository
type fileConfig struct {
	Menus []struct {
		Key    string `yaml:"key"`
		Name   string `yaml:"name"`
		Kind   string `yaml:"kind"`
		Images []struct {
			ID  string `yaml:"id"`
			URL string `yaml:"url"`
		} `yaml:"images"`
	} `yaml:"menus"`
	Displays []struct {
		PublicID       string   `yaml:"public_id"`
		Name           string   `yaml:"name"`
		IntervalMs     int      `yaml:"interval_ms"`
		TransitionMode string   `yaml:"transition_mode"`
		Menus          []string `yaml:"menus"`
	} `yaml:"displays"`
}

// StableID derives a deterministic ID so file-backed records keep their
// identity across restarts.
func StableID(kind, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("signage:"+kind+":"+key))
}

// LoadMemoryRepository reads displays and menus from a YAML file
func LoadMemoryRepository(path string) (*MemoryRepository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read displays file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse displays file: %w", err)
	}

	repo := NewMemoryRepository()
	now := time.Now().UTC()

	for _, fm := range cfg.Menus {
		if fm.Key == "" {
			return nil, fmt.Errorf("menu %q has no key", fm.Name)
		}
		menu := models.Menu{
			ID:        StableID("menu", fm.Key),
			Name:      fm.Name,
			Kind:      models.MenuKind(fm.Kind),
			CreatedAt: now,
			UpdatedAt: now,
		}
		for _, img := range fm.Images {
			menu.Images = append(menu.Images, models.ImageRef{ID: img.ID, URL: img.URL})
		}
		repo.PutMenu(menu)
	}

	for _, fd := range cfg.Displays {
		if fd.PublicID == "" {
			return nil, fmt.Errorf("display %q has no public_id", fd.Name)
		}
		display := models.Display{
			ID:             StableID("display", fd.PublicID),
			PublicID:       fd.PublicID,
			Name:           fd.Name,
			IntervalMs:     fd.IntervalMs,
			TransitionMode: models.TransitionMode(fd.TransitionMode),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		for _, key := range fd.Menus {
			id := StableID("menu", key)
			if _, ok := repo.menus[id]; !ok {
				return nil, fmt.Errorf("display %s references unknown menu %q", fd.PublicID, key)
			}
			display.MenuIDs = append(display.MenuIDs, id)
		}
		repo.PutDisplay(display)
	}

	return repo, nil
}

// Replace swaps in the contents of src.
func (m *MemoryRepository) Replace(src *MemoryRepository) {
	src.mu.RLock()
	displays := make(map[string]models.Display, len(src.displays))
	for k, v := range src.displays {
		displays[k] = v
	}
	menus := make(map[uuid.UUID]models.Menu, len(src.menus))
	for k, v := range src.menus {
		menus[k] = v
	}
	src.mu.RUnlock()

	m.mu.Lock()
	m.displays = displays
	m.menus = menus
	m.mu.Unlock()
}

// Len returns the number of displays held.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.displays)
}

// Snapshot returns every display ordered by public ID and every menu ordered
// by ID.
func (m *MemoryRepository) Snapshot() ([]models.Display, []models.Menu) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	displays := make([]models.Display, 0, len(m.displays))
	for _, d := range m.displays {
		displays = append(displays, d)
	}
	sort.Slice(displays, func(i, j int) bool { return displays[i].PublicID < displays[j].PublicID })

	menus := make([]models.Menu, 0, len(m.menus))
	for _, menu := range m.menus {
		menus = append(menus, menu)
	}
	sort.Slice(menus, func(i, j int) bool { return menus[i].ID.String() < menus[j].ID.String() })

	return displays, menus
}
