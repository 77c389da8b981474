package tools

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"medassist/pkg"
)

//go:embed data/hospitals.json
var hospitalsJSON []byte

//go:embed data/drugs.json
var drugsJSON []byte

// Catalog holds the facility and drug tables served by the tool server.
type Catalog struct {
	hospitals map[string][]pkg.FacilityResult // keyed by lower-cased city
	drugs     map[string]pkg.DrugRecord
}

// DefaultCatalog parses the embedded datasets.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(hospitalsJSON, drugsJSON)
}

// LoadCatalog parses a city → facilities table and a name → drug table.
func LoadCatalog(hospitals, drugs []byte) (*Catalog, error) {
	var byCity map[string][]pkg.FacilityResult
	if err := json.Unmarshal(hospitals, &byCity); err != nil {
		return nil, fmt.Errorf("decode hospitals: %w", err)
	}
	var byName map[string]pkg.DrugRecord
	if err := json.Unmarshal(drugs, &byName); err != nil {
		return nil, fmt.Errorf("decode drugs: %w", err)
	}
	c := &Catalog{
		hospitals: make(map[string][]pkg.FacilityResult, len(byCity)),
		drugs:     byName,
	}
	for city, list := range byCity {
		c.hospitals[strings.ToLower(strings.TrimSpace(city))] = list
	}
	return c, nil
}

// RecommendHospital picks a facility in city.  Emergencies get the first
// facility with an emergency department; otherwise the first facility
// offering specialist; otherwise the city's first facility.
func (c *Catalog) RecommendHospital(city, severity, specialist string) pkg.FacilityResult {
	list := c.hospitals[strings.ToLower(strings.TrimSpace(city))]
	if len(list) == 0 {
		return pkg.FacilityResult{Error: "City not found"}
	}

	if strings.EqualFold(severity, string(pkg.SeverityEmergency)) {
		for _, h := range list {
			if h.EmergencyAvailable {
				return h
			}
		}
	}

	if specialist = capitalize(strings.TrimSpace(specialist)); specialist != "" {
		for _, h := range list {
			for _, s := range h.Specialties {
				if s == specialist {
					return h
				}
			}
		}
	}
	return list[0]
}

// DrugInformation returns the record for name, matching exactly first and
// then case-insensitively.
func (c *Catalog) DrugInformation(name string) pkg.DrugRecord {
	if rec, ok := c.drugs[name]; ok {
		return rec
	}
	for key, rec := range c.drugs {
		if strings.EqualFold(key, strings.TrimSpace(name)) {
			return rec
		}
	}
	return pkg.DrugRecord{"error": "Drug not found"}
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
