// Package directory provides the two-tier customer lookup used to resolve
// extracted phones and plates to customer names.
package directory

import (
	"credit-reconciliation-service/internal/models"
	"credit-reconciliation-service/pkg/logger"
)

// Tier identifies a registry within the Directory.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
)

// Ledger returns the outcome ledger a hit in this tier lands in.
func (t Tier) Ledger() models.LedgerKind {
	if t == TierSecondary {
		return models.LedgerSecondary
	}
	return models.LedgerPrimary
}

// Match is a successful registry lookup.
type Match struct {
	Identifier string
	Name       string
	Identity   string
	Tier       Tier
}

// Registry indexes one customer snapshot by normalized phone and plate.
type Registry struct {
	// Plates maps a normalized plate to a customer name
	Plates map[string]string

	// Phones maps a normalized phone to a customer name
	Phones map[string]string

	// Identities maps an identifier to the customer identity token
	Identities map[string]string
}

// NewRegistry builds the indexes for records. Records with an empty name are
// skipped; later records win on key collisions.
func NewRegistry(records []models.CustomerRecord) *Registry {
	r := &Registry{
		Plates:     make(map[string]string),
		Phones:     make(map[string]string),
		Identities: make(map[string]string),
	}

	for _, rec := range records {
		var key string
		switch rec.Kind {
		case models.KindPlate:
			key = models.NormalizePlate(rec.Identifier)
			if key == "" {
				continue
			}
			r.Plates[key] = rec.Name
		case models.KindPhone:
			key = models.NormalizePhone(rec.Identifier)
			if key == "" {
				continue
			}
			r.Phones[key] = rec.Name
		default:
			continue
		}
		if rec.Identity != "" {
			r.Identities[key] = rec.Identity
		}
	}
	return r
}

// EmptyRegistry returns a registry where every lookup misses.
func EmptyRegistry() *Registry {
	return NewRegistry(nil)
}

// Size returns the number of indexed identifiers.
func (r *Registry) Size() int {
	if r == nil {
		return 0
	}
	return len(r.Plates) + len(r.Phones)
}

// Lookup resolves identifier. Phones are tried as given, then in their
// alternate 255/0 form.
func (r *Registry) Lookup(identifier string, kind models.IdentifierKind) (Match, bool) {
	if r == nil || identifier == "" {
		return Match{}, false
	}

	switch kind {
	case models.KindPlate:
		if name, ok := r.Plates[identifier]; ok {
			return Match{Identifier: identifier, Name: name, Identity: r.Identities[identifier]}, true
		}
	case models.KindPhone:
		if name, ok := r.Phones[identifier]; ok {
			return Match{Identifier: identifier, Name: name, Identity: r.Identities[identifier]}, true
		}
		if alt := models.AlternatePhone(identifier); alt != "" {
			if name, ok := r.Phones[alt]; ok {
				return Match{Identifier: identifier, Name: name, Identity: r.Identities[alt]}, true
			}
		}
	}
	return Match{}, false
}

// Directory consults the primary registry, then the secondary one.
type Directory struct {
	primary   *Registry
	secondary *Registry
	logger    logger.Logger
}

// New creates a Directory. A nil registry is treated as empty so lookups
// fail soft.
func New(primary, secondary *Registry, log logger.Logger) *Directory {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("directory")

	if primary == nil {
		log.Warn("Primary registry unavailable, using empty registry")
		primary = EmptyRegistry()
	}
	if secondary == nil {
		log.Warn("Secondary registry unavailable, using empty registry")
		secondary = EmptyRegistry()
	}

	log.WithFields(logger.Fields{
		"primary":   primary.Size(),
		"secondary": secondary.Size(),
	}).Info("Customer directory loaded")

	return &Directory{primary: primary, secondary: secondary, logger: log}
}

// Registry returns the registry for tier.
func (d *Directory) Registry(tier Tier) *Registry {
	if tier == TierSecondary {
		return d.secondary
	}
	return d.primary
}

// Lookup queries one tier.
func (d *Directory) Lookup(tier Tier, identifier string, kind models.IdentifierKind) (Match, bool) {
	m, ok := d.Registry(tier).Lookup(identifier, kind)
	if ok {
		m.Tier = tier
	}
	d.logger.WithFields(logger.Fields{
		"tier":       tier,
		"identifier": identifier,
		"kind":       kind,
		"hit":        ok,
	}).Debug("Registry lookup")
	return m, ok
}

// Resolve tries the primary tier, then the secondary tier.
func (d *Directory) Resolve(identifier string, kind models.IdentifierKind) (Match, bool) {
	if m, ok := d.Lookup(TierPrimary, identifier, kind); ok {
		return m, true
	}
	return d.Lookup(TierSecondary, identifier, kind)
}
