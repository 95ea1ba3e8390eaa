package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	tbl := Default()

	assert.Equal(t, []Sector{SectorKaigo, SectorGaishoku}, tbl.Sectors())

	prep, ok := tbl.Phase(SectorKaigo, PhasePreparation)
	require.True(t, ok)
	assert.Len(t, prep.Items, 9)
	assert.True(t, prep.LockOnComplete)

	entry, ok := tbl.Phase(SectorKaigo, PhaseEntry)
	require.True(t, ok)
	assert.Len(t, entry.Items, 7)

	ongoing, ok := tbl.Phase(SectorKaigo, PhaseOngoing)
	require.True(t, ok)
	assert.False(t, ongoing.LockOnComplete, "recurring phases stay editable")

	_, ok = tbl.Phase(SectorGaishoku, PhaseVisitCare)
	assert.False(t, ok, "visit care is care-sector only")

	q, ok := tbl.Qualification(SectorKaigo, "shoninsha")
	require.True(t, ok)
	assert.True(t, q.GrantsVisitCare)
}

func TestDefaultTableMarksAnnualReportItem(t *testing.T) {
	for _, s := range Default().Sectors() {
		ongoing, ok := Default().Phase(s, PhaseOngoing)
		require.True(t, ok)
		found := false
		for _, it := range ongoing.Items {
			if it.Kind == ItemKindAnnualReport {
				found = true
			}
		}
		assert.True(t, found, "sector %s has no annual report item", s)
	}
}

func TestParseRejectsDuplicateItems(t *testing.T) {
	doc := `
sectors:
  - id: kaigo
    phases:
      - id: preparation
        items: [{id: a, text: one}]
      - id: entry
        items: [{id: a, text: two}]
      - id: ongoing
      - id: renewal
      - id: exit
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `item "a"`)
}

func TestParseRequiresCorePhases(t *testing.T) {
	doc := `
sectors:
  - id: kaigo
    phases:
      - id: preparation
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required phase")
}

func TestLoadFromFile(t *testing.T) {
	doc := `
sectors:
  - id: gaishoku
    label: 外食業
    phases:
      - {id: preparation, lock_on_complete: true, items: [{id: p1, text: x}]}
      - {id: entry, items: []}
      - {id: ongoing}
      - {id: renewal}
      - {id: exit}
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	tbl, err := Load(path)
	require.NoError(t, err)

	s, ok := tbl.ParseSector("gaishoku")
	assert.True(t, ok)
	assert.Equal(t, SectorGaishoku, s)
	_, ok = tbl.ParseSector("kaigo")
	assert.False(t, ok)

	p, ok := tbl.Phase(SectorGaishoku, PhasePreparation)
	require.True(t, ok)
	assert.True(t, p.HasItem("p1"))
	assert.False(t, p.HasItem("p2"))
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	tbl, err := Load("")
	require.NoError(t, err)
	assert.Same(t, Default(), tbl)
}
