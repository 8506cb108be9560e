package directory

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Aaron-Tawil/super-order-automation/internal"
	"github.com/Aaron-Tawil/super-order-automation/internal/util"
)

// MetaLastModified is the metadata key bumped on every directory write.
// Cached indices are rebuilt when the stored value is newer than the
// cache build time.
const MetaLastModified = "suppliers.last_modified"

// Store is the persistence surface the directory needs.
type Store interface {
	ListSuppliers() ([]internal.SupplierRecord, error)
	GetSupplier(code string) (*internal.SupplierRecord, error)
	CreateSupplier(rec internal.SupplierRecord) error
	SetSupplierGlobalIDIfEmpty(code, globalID string) (bool, error)
	AppendSupplierEmail(code, email string) error
	UpdateSupplierInstructions(code, instructions string) error
	GetMetadata(key string) (*string, error)
	SetMetadata(key, value string) error
}

// Index holds lookup maps over a supplier snapshot. Keys are normalized;
// ambiguous keys (two suppliers sharing a phone) map to every holder so
// the matcher can refuse to guess.
type Index struct {
	Suppliers []internal.SupplierRecord

	ByCode     map[string]internal.SupplierRecord
	ByGlobalID map[string][]string
	ByPhone    map[string][]string
	ByEmail    map[string][]string
	ByDomain   map[string][]string
	ByName     map[string][]string
}

func BuildIndex(suppliers []internal.SupplierRecord) *Index {
	idx := &Index{
		Suppliers:  suppliers,
		ByCode:     map[string]internal.SupplierRecord{},
		ByGlobalID: map[string][]string{},
		ByPhone:    map[string][]string{},
		ByEmail:    map[string][]string{},
		ByDomain:   map[string][]string{},
		ByName:     map[string][]string{},
	}

	addKey := func(m map[string][]string, key, code string) {
		if key == "" {
			return
		}
		for _, existing := range m[key] {
			if existing == code {
				return
			}
		}
		m[key] = append(m[key], code)
	}

	for _, s := range suppliers {
		idx.ByCode[s.Code] = s

		addKey(idx.ByGlobalID, util.NormalizeDigits(s.GlobalID), s.Code)
		addKey(idx.ByPhone, util.NormalizeDigits(s.Phone), s.Code)
		addKey(idx.ByName, util.NormalizeName(s.Name), s.Code)

		emails := append([]string{s.Email}, s.AdditionalEmails...)
		for _, e := range emails {
			norm := util.NormalizeEmail(e)
			addKey(idx.ByEmail, norm, s.Code)
			addKey(idx.ByDomain, util.EmailDomain(norm), s.Code)
		}
	}

	return idx
}

// Cache lazily loads the directory and rebuilds its indices only when the
// store's last-modified marker moved past the cached build time.
type Cache struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	index   *Index
	builtAt time.Time
}

func NewCache(store Store, logger *slog.Logger) *Cache {
	return &Cache{store: store, logger: logger, now: time.Now}
}

// Snapshot returns the current index, rebuilding if stale.
func (c *Cache) Snapshot() (*Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stale, err := c.isStale()
	if err != nil {
		return nil, err
	}
	if c.index != nil && !stale {
		return c.index, nil
	}

	suppliers, err := c.store.ListSuppliers()
	if err != nil {
		return nil, fmt.Errorf("load suppliers: %w", err)
	}

	c.index = BuildIndex(suppliers)
	c.builtAt = c.now()
	c.logger.Debug("supplier index rebuilt", "suppliers", len(suppliers))
	return c.index, nil
}

// Invalidate drops the cached index without touching the store.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.index = nil
	c.mu.Unlock()
}

func (c *Cache) isStale() (bool, error) {
	if c.index == nil {
		return true, nil
	}

	value, err := c.store.GetMetadata(MetaLastModified)
	if err != nil {
		return false, err
	}
	if value == nil {
		return false, nil
	}

	modified, err := time.Parse(time.RFC3339Nano, *value)
	if err != nil {
		// Unparseable marker: rebuild rather than serve stale data.
		return true, nil
	}
	return modified.After(c.builtAt), nil
}
