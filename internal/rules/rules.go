// Package rules holds the static checklist and qualification tables that
// drive the compliance engine. Tables are loaded from YAML; the default set
// is embedded in the binary.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRules []byte

// Sector identifies an SSW industry sector.
type Sector string

const (
	SectorKaigo    Sector = "kaigo"
	SectorGaishoku Sector = "gaishoku"
)

// PhaseID identifies a compliance lifecycle phase.
type PhaseID string

const (
	PhasePreparation PhaseID = "preparation"
	PhaseEntry       PhaseID = "entry"
	PhaseOngoing     PhaseID = "ongoing"
	PhaseRenewal     PhaseID = "renewal"
	PhaseVisitCare   PhaseID = "visit_care"
	PhaseExit        PhaseID = "exit"
)

// requiredPhases must exist in every sector because the engine derives
// warnings from them.
var requiredPhases = []PhaseID{PhasePreparation, PhaseEntry, PhaseOngoing, PhaseRenewal, PhaseExit}

// ItemKindAnnualReport marks the checklist item recording the yearly filing.
const ItemKindAnnualReport = "annual_report"

// Item is a single checklist entry.
type Item struct {
	ID   string `yaml:"id" json:"id"`
	Text string `yaml:"text" json:"text"`
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`
}

// Phase is an ordered checklist. LockOnComplete phases model one-time
// filings and become read-only once every item is checked.
type Phase struct {
	ID             PhaseID `yaml:"id" json:"id"`
	Title          string  `yaml:"title" json:"title"`
	Icon           string  `yaml:"icon" json:"icon"`
	LockOnComplete bool    `yaml:"lock_on_complete" json:"lock_on_complete"`
	Items          []Item  `yaml:"items" json:"items"`
}

// HasItem reports whether id belongs to the phase.
func (p Phase) HasItem(id string) bool {
	for _, it := range p.Items {
		if it.ID == id {
			return true
		}
	}
	return false
}

// Qualification is a certificate or exam a staff member can acquire.
type Qualification struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	GrantsVisitCare bool   `yaml:"grants_visit_care,omitempty" json:"grants_visit_care,omitempty"`
}

// SectorRules groups the tables of one sector.
type SectorRules struct {
	ID             Sector          `yaml:"id" json:"id"`
	Label          string          `yaml:"label" json:"label"`
	Phases         []Phase         `yaml:"phases" json:"phases"`
	Qualifications []Qualification `yaml:"qualifications" json:"qualifications"`
}

type document struct {
	Sectors []SectorRules `yaml:"sectors"`
}

// Set is the lookup the engine consumes. *Table implements it; tests can
// supply synthetic rule sets.
type Set interface {
	Phases(s Sector) []Phase
	Phase(s Sector, id PhaseID) (Phase, bool)
	Qualifications(s Sector) []Qualification
	Qualification(s Sector, id string) (Qualification, bool)
}

// Table is an immutable, validated rule set.
type Table struct {
	order   []Sector
	sectors map[Sector]SectorRules
}

var loadDefault = sync.OnceValues(func() (*Table, error) {
	return Parse(defaultRules)
})

// Default returns the embedded rule table.
func Default() *Table {
	t, err := loadDefault()
	if err != nil {
		panic(fmt.Sprintf("rules: embedded table is invalid: %v", err))
	}
	return t
}

// Load reads a rule table from path. An empty path returns the embedded
// default.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules: %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a YAML rule document.
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return New(doc.Sectors)
}

// New builds a Table from already-decoded sector rules.
func New(sectors []SectorRules) (*Table, error) {
	if len(sectors) == 0 {
		return nil, fmt.Errorf("no sectors defined")
	}
	t := &Table{sectors: make(map[Sector]SectorRules, len(sectors))}
	for _, s := range sectors {
		if s.ID == "" {
			return nil, fmt.Errorf("sector without id")
		}
		if _, dup := t.sectors[s.ID]; dup {
			return nil, fmt.Errorf("duplicate sector %q", s.ID)
		}
		if err := validateSector(s); err != nil {
			return nil, fmt.Errorf("sector %q: %w", s.ID, err)
		}
		t.sectors[s.ID] = s
		t.order = append(t.order, s.ID)
	}
	return t, nil
}

func validateSector(s SectorRules) error {
	phases := make(map[PhaseID]bool, len(s.Phases))
	items := make(map[string]PhaseID)
	for _, p := range s.Phases {
		if p.ID == "" {
			return fmt.Errorf("phase without id")
		}
		if phases[p.ID] {
			return fmt.Errorf("duplicate phase %q", p.ID)
		}
		phases[p.ID] = true
		for _, it := range p.Items {
			if it.ID == "" {
				return fmt.Errorf("phase %q: item without id", p.ID)
			}
			if other, dup := items[it.ID]; dup {
				return fmt.Errorf("item %q appears in both %q and %q", it.ID, other, p.ID)
			}
			items[it.ID] = p.ID
		}
	}
	for _, id := range requiredPhases {
		if !phases[id] {
			return fmt.Errorf("missing required phase %q", id)
		}
	}
	quals := make(map[string]bool, len(s.Qualifications))
	for _, q := range s.Qualifications {
		if q.ID == "" {
			return fmt.Errorf("qualification without id")
		}
		if quals[q.ID] {
			return fmt.Errorf("duplicate qualification %q", q.ID)
		}
		quals[q.ID] = true
	}
	return nil
}

// Sectors returns the sector ids in document order.
func (t *Table) Sectors() []Sector {
	out := make([]Sector, len(t.order))
	copy(out, t.order)
	return out
}

// Sector returns the full rules for s.
func (t *Table) Sector(s Sector) (SectorRules, bool) {
	r, ok := t.sectors[s]
	return r, ok
}

// Phases returns the ordered phases of s, or nil for an unknown sector.
func (t *Table) Phases(s Sector) []Phase {
	return t.sectors[s].Phases
}

// Phase looks up a single phase.
func (t *Table) Phase(s Sector, id PhaseID) (Phase, bool) {
	for _, p := range t.sectors[s].Phases {
		if p.ID == id {
			return p, true
		}
	}
	return Phase{}, false
}

// Qualifications returns the qualification list of s.
func (t *Table) Qualifications(s Sector) []Qualification {
	return t.sectors[s].Qualifications
}

// Qualification looks up a single qualification.
func (t *Table) Qualification(s Sector, id string) (Qualification, bool) {
	for _, q := range t.sectors[s].Qualifications {
		if q.ID == id {
			return q, true
		}
	}
	return Qualification{}, false
}

// ParseSector validates a sector string against the table.
func (t *Table) ParseSector(v string) (Sector, bool) {
	s := Sector(v)
	_, ok := t.sectors[s]
	return s, ok
}
