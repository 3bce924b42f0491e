package pipeline

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
)

// App identifies which dashboard a variant configures.
type App string

const (
	AppDrought App = "drought"
	AppCity    App = "city"
)

// Variant describes one dashboard deployment. Drought variants share the
// same pipeline and differ only in header text, logo and which optional
// sections are enabled.
type Variant struct {
	Key         string `yaml:"key" json:"key"`
	App         App    `yaml:"app" json:"app"`
	Title       string `yaml:"title" json:"title"`
	Header      string `yaml:"header" json:"header"`
	Logo        string `yaml:"logo" json:"logo"`
	YearRanking bool   `yaml:"year_ranking" json:"year_ranking"`
	SidebarMap  bool   `yaml:"sidebar_map" json:"sidebar_map"`
}

const (
	amharaTitle  = "BDU-CARP Risk Profiling"
	amharaHeader = "Drought-related Yield Loss Estimates for Amhara Region, Ethiopia"
)

// DefaultVariants returns the built-in dashboard variants.
func DefaultVariants() []Variant {
	return []Variant{
		{Key: "amhara", App: AppDrought, Title: amharaTitle, Header: amharaHeader, Logo: "index2.png"},
		{Key: "amhara-insurance", App: AppDrought, Title: amharaTitle, Header: amharaHeader, Logo: "index2.png", YearRanking: true},
		{Key: "amhara-sidebar", App: AppDrought, Title: amharaTitle, Header: amharaHeader, Logo: "index2.png", SidebarMap: true},
		{Key: "amhara-extended", App: AppDrought, Title: amharaTitle, Header: amharaHeader, Logo: "index2.png", YearRanking: true, SidebarMap: true},
		{
			Key:    "amhara-outreach",
			App:    AppDrought,
			Title:  amharaTitle,
			Header: "Crop Yield Loss Risk Profiles for Drought Risk Financing, Amhara Region",
			Logo:   "Horizontal_RGB_294_White.png",
		},
		{Key: "hawassa", App: AppCity, Title: "Hawassa Risk Profiling Program", Header: "Hawassa Risk Profiling Program"},
	}
}

// Variants is an ordered, keyed set of variant configurations.
type Variants struct {
	list []Variant
}

// NewVariants builds a set from vs. Later entries replace earlier ones with
// the same key.
func NewVariants(vs ...Variant) *Variants {
	s := &Variants{}
	for _, v := range vs {
		s.put(v)
	}
	return s
}

func (s *Variants) put(v Variant) {
	if i := slices.IndexFunc(s.list, func(x Variant) bool { return x.Key == v.Key }); i >= 0 {
		s.list[i] = v
		return
	}
	s.list = append(s.list, v)
}

// Get returns the variant with the given key.
func (s *Variants) Get(key string) (Variant, error) {
	for _, v := range s.list {
		if v.Key == key {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("variant %q: %w", key, domain.ErrNotFound)
}

// All returns the variants in definition order.
func (s *Variants) All() []Variant { return slices.Clone(s.list) }

type variantsFile struct {
	Variants []Variant `yaml:"variants"`
}

// LoadVariants reads additional or replacement variants from a YAML file
// and merges them over the built-in set. An empty path returns the
// built-in set.
func LoadVariants(path string) (*Variants, error) {
	s := NewVariants(DefaultVariants()...)
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variants file: %w", err)
	}
	var f variantsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse variants file %s: %w", path, err)
	}
	for i, v := range f.Variants {
		if v.Key == "" {
			return nil, fmt.Errorf("variants file %s: entry %d has no key", path, i)
		}
		switch v.App {
		case "":
			v.App = AppDrought
		case AppDrought, AppCity:
		default:
			return nil, fmt.Errorf("variants file %s: variant %q has unknown app %q", path, v.Key, v.App)
		}
		s.put(v)
	}
	return s, nil
}
