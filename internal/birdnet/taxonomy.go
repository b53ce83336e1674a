package birdnet

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

// TaxonomyDatabase is the genus and family database file schema.
type TaxonomyDatabase struct {
	Version      string                     `json:"version"`
	Source       string                     `json:"source"`
	Genera       map[string]*GenusMetadata  `json:"genera"`
	Families     map[string]*FamilyMetadata `json:"families"`
	SpeciesIndex map[string]string          `json:"species_index"` // scientific name -> genus
}

// GenusMetadata describes one genus.
type GenusMetadata struct {
	Family       string   `json:"family"`
	FamilyCommon string   `json:"family_common"`
	Order        string   `json:"order"`
	Species      []string `json:"species"`
}

// FamilyMetadata describes one family.
type FamilyMetadata struct {
	FamilyCommon string   `json:"family_common"`
	Order        string   `json:"order"`
	Genera       []string `json:"genera"`
}

// Taxonomy resolves species to a family group for confusion suppression.
// Species missing from the database, or every species when no database is
// loaded, are grouped by genus. A Taxonomy is read only and safe to share.
type Taxonomy struct {
	speciesGenus map[string]string // lowercase scientific name -> lowercase genus
	genusFamily  map[string]string // lowercase genus -> lowercase family
}

// NewGenusTaxonomy returns a Taxonomy that groups species by genus only.
func NewGenusTaxonomy() *Taxonomy {
	return &Taxonomy{}
}

// NewTaxonomy indexes a decoded database.
func NewTaxonomy(db *TaxonomyDatabase) *Taxonomy {
	t := &Taxonomy{
		speciesGenus: make(map[string]string, len(db.SpeciesIndex)),
		genusFamily:  make(map[string]string, len(db.Genera)),
	}
	for species, genus := range db.SpeciesIndex {
		t.speciesGenus[normalizeName(species)] = normalizeName(genus)
	}
	for genus, meta := range db.Genera {
		if meta != nil && meta.Family != "" {
			t.genusFamily[normalizeName(genus)] = normalizeName(meta.Family)
		}
	}
	return t
}

// LoadTaxonomy reads a taxonomy database. An empty path yields genus grouping.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	if path == "" {
		return NewGenusTaxonomy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Context("operation", "load_taxonomy").
			Build()
	}

	var db TaxonomyDatabase
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			FileContext(path, int64(len(data))).
			Context("operation", "parse_taxonomy").
			Build()
	}
	if len(db.Genera) == 0 || len(db.SpeciesIndex) == 0 {
		return nil, errors.Newf("taxonomy database is empty or invalid").
			Category(errors.CategoryValidation).
			FileContext(path, int64(len(data))).
			Build()
	}

	t := NewTaxonomy(&db)
	GetLogger().Info("taxonomy loaded",
		logger.String("path", path),
		logger.Int("species", len(t.speciesGenus)),
		logger.Int("genera", len(t.genusFamily)))
	return t, nil
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// genusOf returns the first word of a binomial name.
func genusOf(scientificName string) string {
	name := normalizeName(scientificName)
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

// FamilyOf returns the family group of a species.
func (t *Taxonomy) FamilyOf(scientificName string) string {
	name := normalizeName(scientificName)
	genus, ok := t.speciesGenus[name]
	if !ok {
		genus = genusOf(name)
	}
	if family, ok := t.genusFamily[genus]; ok {
		return family
	}
	return "genus:" + genus
}
