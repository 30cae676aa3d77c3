package services

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"digidost/models"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

//go:embed catalog_default.yaml
var defaultCatalogYAML []byte

type catalogFile struct {
	Badges       []models.BadgeDefinition       `yaml:"badges"`
	Achievements []models.AchievementDefinition `yaml:"achievements"`
}

// StaticCatalog is an immutable, indexed set of definitions.
type StaticCatalog struct {
	badges       []models.BadgeDefinition
	achievements []models.AchievementDefinition
	badgeIdx     map[string]int
	achieveIdx   map[string]int
}

// ParseCatalog decodes a YAML catalog. Entries without an id get one derived
// from their name or title.
func ParseCatalog(data []byte) (*StaticCatalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return NewStaticCatalog(f.Badges, f.Achievements)
}

func NewStaticCatalog(badges []models.BadgeDefinition, achievements []models.AchievementDefinition) (*StaticCatalog, error) {
	c := &StaticCatalog{
		badgeIdx:   make(map[string]int, len(badges)),
		achieveIdx: make(map[string]int, len(achievements)),
	}
	for _, b := range badges {
		if b.ID == "" {
			b.ID = slug.Make(b.Name)
		}
		if b.ID == "" {
			return nil, fmt.Errorf("%w: badge without id or name", ErrInvalidCatalog)
		}
		if _, dup := c.badgeIdx[b.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate badge id %q", ErrInvalidCatalog, b.ID)
		}
		warnUnknownCriteria("badge", b.ID, b.Criteria)
		c.badgeIdx[b.ID] = len(c.badges)
		c.badges = append(c.badges, b)
	}
	for _, a := range achievements {
		if a.ID == "" {
			a.ID = slug.Make(a.Title)
		}
		if a.ID == "" {
			return nil, fmt.Errorf("%w: achievement without id or title", ErrInvalidCatalog)
		}
		if _, dup := c.achieveIdx[a.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate achievement id %q", ErrInvalidCatalog, a.ID)
		}
		if a.XPReward < 0 || a.CoinReward < 0 {
			return nil, fmt.Errorf("%w: achievement %q has a negative reward", ErrInvalidCatalog, a.ID)
		}
		warnUnknownCriteria("achievement", a.ID, a.Criteria)
		c.achieveIdx[a.ID] = len(c.achievements)
		c.achievements = append(c.achievements, a)
	}
	return c, nil
}

func warnUnknownCriteria(kind, id string, c models.Criteria) {
	switch c.Kind {
	case "", models.CriteriaXP, models.CriteriaStreak, models.CriteriaAssignments,
		models.CriteriaLessons, models.CriteriaTournaments, models.CriteriaSocial:
		return
	}
	log.Printf("⚠️  [CATALOG] %s %q has unknown criteria kind %q, progress will read 0", kind, id, c.Kind)
}

func (c *StaticCatalog) Badge(id string) (models.BadgeDefinition, bool) {
	i, ok := c.badgeIdx[id]
	if !ok {
		return models.BadgeDefinition{}, false
	}
	return c.badges[i], true
}

func (c *StaticCatalog) Achievement(id string) (models.AchievementDefinition, bool) {
	i, ok := c.achieveIdx[id]
	if !ok {
		return models.AchievementDefinition{}, false
	}
	return c.achievements[i], true
}

func (c *StaticCatalog) Badges() []models.BadgeDefinition {
	return append([]models.BadgeDefinition(nil), c.badges...)
}

func (c *StaticCatalog) Achievements() []models.AchievementDefinition {
	return append([]models.AchievementDefinition(nil), c.achievements...)
}

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() *StaticCatalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// CatalogHolder is a Catalog whose contents can be swapped while requests
// are reading it.
type CatalogHolder struct {
	mu      sync.RWMutex
	current *StaticCatalog
}

func NewCatalogHolder(initial *StaticCatalog) *CatalogHolder {
	return &CatalogHolder{current: initial}
}

func (h *CatalogHolder) Replace(c *StaticCatalog) {
	h.mu.Lock()
	h.current = c
	h.mu.Unlock()
}

func (h *CatalogHolder) get() *StaticCatalog {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

func (h *CatalogHolder) Badge(id string) (models.BadgeDefinition, bool) { return h.get().Badge(id) }

func (h *CatalogHolder) Achievement(id string) (models.AchievementDefinition, bool) {
	return h.get().Achievement(id)
}

func (h *CatalogHolder) Badges() []models.BadgeDefinition { return h.get().Badges() }

func (h *CatalogHolder) Achievements() []models.AchievementDefinition {
	return h.get().Achievements()
}

// CatalogSource fetches raw catalog YAML.
type CatalogSource interface {
	Name() string
	Fetch(ctx context.Context) ([]byte, error)
}

// ObjectStore is the slice of the R2 client the catalog needs.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

type EmbeddedCatalogSource struct{}

func (EmbeddedCatalogSource) Name() string { return "embedded" }

func (EmbeddedCatalogSource) Fetch(context.Context) ([]byte, error) {
	return defaultCatalogYAML, nil
}

type FileCatalogSource struct {
	Path string
}

func (s FileCatalogSource) Name() string { return "file:" + s.Path }

func (s FileCatalogSource) Fetch(context.Context) ([]byte, error) {
	return os.ReadFile(s.Path)
}

type R2CatalogSource struct {
	Store ObjectStore
	Key   string
}

func (s R2CatalogSource) Name() string { return "r2:" + s.Key }

func (s R2CatalogSource) Fetch(ctx context.Context) ([]byte, error) {
	return s.Store.GetObject(ctx, s.Key)
}

// LoadCatalog fetches and parses a catalog from src.
func LoadCatalog(ctx context.Context, src CatalogSource) (*StaticCatalog, error) {
	data, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog from %s: %w", src.Name(), err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog from %s: %w", src.Name(), err)
	}
	return c, nil
}

// PublishCatalog validates data, uploads it to the R2 key and swaps it into
// holder.
func PublishCatalog(ctx context.Context, store ObjectStore, key string, data []byte, holder *CatalogHolder) (*StaticCatalog, error) {
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	url, err := store.PutObject(ctx, key, data, "application/yaml")
	if err != nil {
		return nil, fmt.Errorf("upload catalog: %w", err)
	}
	holder.Replace(c)
	log.Printf("✅ [CATALOG] published %d badges, %d achievements to %s", len(c.badges), len(c.achievements), url)
	return c, nil
}
