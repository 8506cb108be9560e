package directory

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aaron-Tawil/super-order-automation/internal"
	"github.com/Aaron-Tawil/super-order-automation/internal/util"
)

// reservedCodes can never name a real supplier.
var reservedCodes = map[string]struct{}{
	internal.UnknownSupplier: {},
	"_meta":                  {},
}

// Service owns directory writes. Every mutation bumps the last-modified
// marker so other processes drop their cached indices.
type Service struct {
	store  Store
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, cache *Cache, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger, now: time.Now}
}

func (s *Service) AddSupplier(rec internal.SupplierRecord) error {
	rec.Code = strings.TrimSpace(rec.Code)
	if rec.Code == "" {
		return fmt.Errorf("supplier code is required")
	}
	if _, reserved := reservedCodes[rec.Code]; reserved {
		return fmt.Errorf("reserved supplier code: %s", rec.Code)
	}
	if strings.TrimSpace(rec.Name) == "" {
		return fmt.Errorf("supplier name is required")
	}

	if err := s.store.CreateSupplier(rec); err != nil {
		return err
	}
	return s.bump()
}

func (s *Service) SetInstructions(code, instructions string) error {
	if err := s.store.UpdateSupplierInstructions(code, instructions); err != nil {
		return err
	}
	return s.bump()
}

// LearnEmail records a newly seen sender address on a confidently matched
// supplier. Skipped when the address already identifies any supplier, so
// a shared mailbox can never be re-pointed.
func (s *Service) LearnEmail(code, email string) error {
	email = util.NormalizeEmail(email)
	if email == "" || code == "" || code == internal.UnknownSupplier {
		return nil
	}

	idx, err := s.cache.Snapshot()
	if err != nil {
		return err
	}
	if owners := idx.ByEmail[email]; len(owners) > 0 {
		for _, owner := range owners {
			if owner != code {
				s.logger.Warn("email already belongs to another supplier",
					"supplier", code, "owner", owner, "email", email)
			}
		}
		return nil
	}
	if _, known := idx.ByCode[code]; !known {
		return fmt.Errorf("cannot learn email for unknown supplier: %s", code)
	}

	if err := s.store.AppendSupplierEmail(code, email); err != nil {
		return err
	}
	s.logger.Info("learned supplier email", "supplier", code, "email", email)
	return s.bump()
}

// LearnGlobalID records a business id seen on a supplier's document. The
// field is write-once; an id already held by another supplier is ignored.
func (s *Service) LearnGlobalID(code, globalID string) error {
	globalID = util.NormalizeDigits(globalID)
	if globalID == "" || code == "" || code == internal.UnknownSupplier {
		return nil
	}

	idx, err := s.cache.Snapshot()
	if err != nil {
		return err
	}
	for _, owner := range idx.ByGlobalID[globalID] {
		if owner != code {
			s.logger.Warn("global id already belongs to another supplier",
				"supplier", code, "owner", owner, "global_id", globalID)
			return nil
		}
	}

	wrote, err := s.store.SetSupplierGlobalIDIfEmpty(code, globalID)
	if err != nil {
		return err
	}
	if !wrote {
		return nil
	}
	s.logger.Info("learned supplier global id", "supplier", code, "global_id", globalID)
	return s.bump()
}

func (s *Service) bump() error {
	if err := s.store.SetMetadata(MetaLastModified, s.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}
