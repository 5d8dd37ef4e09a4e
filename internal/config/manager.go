package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// File names looked up in the config directory.
const (
	ConfigFile        = "config.json"
	ConfigYAMLFile    = "config.yaml"
	ConfigYMLFile     = "config.yml"
	ProductsFile      = "products.json"
	AchievementsFile  = "achievements_config.json"
	KnowledgeBaseFile = "knowledge_base.json"
	CreditShopFile    = "credit_shop_items.json"
)

// Snapshot is an immutable view of every configuration document. Callers
// must not mutate it.
type Snapshot struct {
	Config        Config
	Products      []Product
	Achievements  []Achievement
	CreditShop    []CreditShopItem
	KnowledgeBase json.RawMessage
	Source        string
	LoadedAt      time.Time
}

// Product looks a catalogue entry up by id.
func (s *Snapshot) Product(id string) (Product, bool) {
	for _, p := range s.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// Categories lists the distinct product categories, sorted.
func (s *Snapshot) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range s.Products {
		if p.Category == "" || seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		out = append(out, p.Category)
	}
	sort.Strings(out)
	return out
}

// ProductsIn returns the products of one category.
func (s *Snapshot) ProductsIn(category string) []Product {
	var out []Product
	for _, p := range s.Products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

type Manager struct {
	mu     sync.RWMutex
	dir    string
	snap   *Snapshot
	subs   []func(*Snapshot)
	logger *zap.Logger
}

func NewManager(dir string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{dir: dir, logger: logger.Named("config")}
}

// NewStatic wraps an already built snapshot, for tools and tests that have
// no config directory.
func NewStatic(snap *Snapshot) *Manager {
	return &Manager{snap: snap, logger: zap.NewNop()}
}

func (m *Manager) Dir() string { return m.dir }

// Load reads every document. It is equivalent to Reload.
func (m *Manager) Load() error {
	return m.Reload()
}

// Reload re-reads all documents and swaps the snapshot only when all of
// them parse. Subscribers are notified after the swap.
func (m *Manager) Reload() error {
	snap, err := ReadDir(m.dir)
	if err != nil {
		m.logger.Error("reload failed, keeping previous config", zap.Error(err))
		return err
	}

	m.mu.Lock()
	m.snap = snap
	subs := append(([]func(*Snapshot))(nil), m.subs...)
	m.mu.Unlock()

	m.logger.Info("config loaded",
		zap.String("source", snap.Source),
		zap.Int("products", len(snap.Products)),
		zap.Int("achievements", len(snap.Achievements)))

	for _, fn := range subs {
		fn(snap)
	}
	return nil
}

// Get returns the current snapshot, nil before the first successful load.
func (m *Manager) Get() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// OnReload registers fn to run after every successful reload.
func (m *Manager) OnReload(fn func(*Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// ReadDir parses the config documents found in dir.
func ReadDir(dir string) (*Snapshot, error) {
	snap := &Snapshot{LoadedAt: time.Now().UTC()}

	source, err := readConfig(dir, &snap.Config)
	if err != nil {
		return nil, err
	}
	snap.Source = source
	snap.Config.applyDefaults()

	if err := readJSON(filepath.Join(dir, ProductsFile), &snap.Products); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, AchievementsFile), &snap.Achievements); err != nil {
		return nil, err
	}

	if err := readOptionalJSON(filepath.Join(dir, CreditShopFile), &snap.CreditShop); err != nil {
		return nil, err
	}

	kb, err := os.ReadFile(filepath.Join(dir, KnowledgeBaseFile))
	switch {
	case err == nil:
		if !json.Valid(kb) {
			return nil, fmt.Errorf("error parsing %s: invalid JSON", KnowledgeBaseFile)
		}
		snap.KnowledgeBase = kb
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("error reading %s: %w", KnowledgeBaseFile, err)
	}
	return snap, nil
}

func readConfig(dir string, cfg *Config) (string, error) {
	jsonPath := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, readJSON(jsonPath, cfg)
	}
	for _, name := range []string{ConfigYAMLFile, ConfigYMLFile} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("error reading %s: %w", name, err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return "", fmt.Errorf("error parsing %s: %w", name, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("error reading config: no %s or %s in %s", ConfigFile, ConfigYAMLFile, dir)
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readOptionalJSON(path string, out any) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return readJSON(path, out)
}

// decodeYAML maps a YAML document onto the JSON-tagged config types by
// round-tripping it through JSON.
func decodeYAML(data []byte, out any) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	buf, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}

// stringKeys rewrites maps with non-string keys, such as PRESTIGE_LEVELS
// written with bare integer keys, so they can be marshaled as JSON.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = stringKeys(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = stringKeys(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = stringKeys(e)
		}
		return t
	}
	return v
}
