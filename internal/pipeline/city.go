package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
)

// City table columns.
const (
	colRiskCom     = "risk_com"
	colShockType   = "shock_type"
	colSubcity     = "subcity_name"
	colSubcityCode = "subcity_code"
	colPopAff      = "pop_aff_norm"
	colPopAffL     = "pop_aff_norm_l"
	colImpSev      = "imp_sev_norm"
	colImpSevL     = "imp_sev_norm_l"
	colIndName     = "ind_name"
	colIndEigen    = "ind_eigenvalue"
	colFScore      = "fscore_norm"
	colFScore100   = "fscore_norm2"
	colZones3      = "zones_3"
	colHRF         = "HRF"
	colCRF         = "CRF"
	colCRI         = "CRI"
	colKebShare    = "keb_share"

	colRecovery   = "recovery_s"
	colEWI        = "shock_ewi_"
	colFuturePlan = "future_pla"
)

// Hazard classes in the hazard table.
const (
	NaturalHazard  = "Natural Hazard"
	EverydayHazard = "Everyday Hazard"
	Stressor       = "Stressor"
)

// Category is an info category of the city dashboard.
type Category struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// City info categories, in menu order.
var (
	CategoryHazard     = Category{Slug: "hazard-exposure", Name: "Hazard & Exposure"}
	CategorySocial     = Category{Slug: "social-vulnerability", Name: "Social Vulnerability"}
	CategoryResilience = Category{Slug: "community-resilience", Name: "Community Resilience"}
	CategoryCRI        = Category{Slug: "city-risk-index", Name: "City Risk Index"}
)

// Categories lists the city info categories.
func Categories() []Category {
	return []Category{CategoryHazard, CategorySocial, CategoryResilience, CategoryCRI}
}

func categoryBySlug(slug string) (Category, error) {
	for _, c := range Categories() {
		if c.Slug == slug {
			return c, nil
		}
	}
	return Category{}, fmt.Errorf("category %q: %w", slug, domain.ErrNotFound)
}

// indexDef describes one index column of the city risk table. Component is
// the risk_com value of its driving factors; empty means none are shown.
type indexDef struct {
	Column    string
	Title     string
	Component string
}

var (
	indexHazard = indexDef{Column: colHRF, Title: "Hazard & Exposure (Index Score)", Component: "Hazard & Exposure"}
	indexSocial = indexDef{Column: "Social Vul", Title: "Social Vulnerability Index (SoVI)", Component: "Social Vulnerability"}
	indexCoRI   = indexDef{Column: "Community", Title: "Community Resilience Index (CoRI)"}
	indexCRI    = indexDef{Column: colCRI, Title: "City Risk Index (CRI)"}

	capacityIndexes = []indexDef{
		{Column: "Absorptive", Title: "Absorptive Capacity Index Scores", Component: "Absorptive Capacity"},
		{Column: "Adaptive C", Title: "Adaptive Capacity Index Scores", Component: "Adaptive Capacity"},
		{Column: "Preventive", Title: "Preventive Capacity Index Scores", Component: "Preventive Capacity"},
		{Column: "Anticipato", Title: "Anticipatory Capacity Index Scores", Component: "Anticipatory Capacity"},
		{Column: "Transforma", Title: "Transformative Capacity Index Scores", Component: "Transformative Capacity"},
	}
)

// mainIndex returns the headline index of a category.
func mainIndex(c Category) indexDef {
	switch c {
	case CategoryHazard:
		return indexHazard
	case CategorySocial:
		return indexSocial
	case CategoryResilience:
		return indexCoRI
	default:
		return indexCRI
	}
}

// KebeleScore is one kebele's value of an index.
type KebeleScore struct {
	Kebele string       `json:"kebele"`
	Score  domain.Value `json:"score"`
}

// Factor is a driving factor of an index component.
type Factor struct {
	Name       string       `json:"name"`
	Eigenvalue domain.Value `json:"eigenvalue"`
}

// IndexPanel is the bar chart, top list, colour range and driving factors
// of one index column.
type IndexPanel struct {
	Column     string             `json:"column"`
	Title      string             `json:"title"`
	Bars       []KebeleScore      `json:"bars"`
	TopKebeles []domain.GroupStat `json:"top_kebeles"`
	Range      domain.Range       `json:"range"`
	Factors    []Factor           `json:"factors,omitempty"`
}

// ShockShare is a shock type's share of a kebele's reported impact severity.
type ShockShare struct {
	Kebele      string       `json:"kebele"`
	SubcityCode string       `json:"subcity_code"`
	ShockType   string       `json:"shock_type"`
	Share       domain.Value `json:"share"`
}

// PrevalenceNode is one leaf of the shock type / subcity / kebele hierarchy.
type PrevalenceNode struct {
	ShockType string       `json:"shock_type"`
	Subcity   string       `json:"subcity"`
	Kebele    string       `json:"kebele"`
	Value     domain.Value `json:"value"`
}

// HazardClass summarizes one hazard class.
type HazardClass struct {
	Class      string           `json:"class"`
	MostCommon string           `json:"most_common"`
	MostSevere string           `json:"most_severe"`
	Shares     []ShockShare     `json:"shares"`
	Prevalence []PrevalenceNode `json:"prevalence"`
}

// HazardSummary is the hazard section of the Hazard & Exposure category.
// Rates are percentages rounded to two places; nil when no kebele reports
// the indicator.
type HazardSummary struct {
	Classes      []HazardClass `json:"classes"`
	RecoveryRate *float64      `json:"recovery_rate"`
	EWICoverage  *float64      `json:"ewi_coverage"`
	FuturePlan   *float64      `json:"future_plan"`
}

// CapacityScore is a kebele's score (0-100) for one resilience capacity.
type CapacityScore struct {
	Kebele   string       `json:"kebele"`
	Capacity string       `json:"capacity"`
	Score    domain.Value `json:"score"`
}

// RiskFactorScore is one cell of the long risk factor table.
type RiskFactorScore struct {
	Kebele string       `json:"kebele"`
	Factor string       `json:"factor"`
	Score  domain.Value `json:"score"`
}

// KebeleZone is the resilience zone designation of a kebele.
type KebeleZone struct {
	Kebele string `json:"kebele"`
	Zone   string `json:"zone"`
}

// ZoneFactors are the mean risk factors of a kebele within a designation.
type ZoneFactors struct {
	Kebele string       `json:"kebele"`
	HRF    domain.Value `json:"hrf"`
	CRF    domain.Value `json:"crf"`
	CRI    domain.Value `json:"cri"`
}

// CityView is everything the city page shows for one info category.
type CityView struct {
	Variant     Variant                  `json:"variant"`
	Category    Category                 `json:"category"`
	Panels      []IndexPanel             `json:"panels"`
	Hazard      *HazardSummary           `json:"hazard,omitempty"`
	Capacities  []CapacityScore          `json:"capacities,omitempty"`
	RiskFactors []RiskFactorScore        `json:"risk_factors,omitempty"`
	Designation []KebeleZone             `json:"designation,omitempty"`
	ZoneFactors map[string][]ZoneFactors `json:"zone_factors,omitempty"`
}

// designationZones are the resilience zones broken down by risk factor.
var designationZones = []string{"Zone A", "Zone B", "Zone C"}

// CityView builds the view of one info category.
func (p *Pipeline) CityView(ctx context.Context, variantKey, slug string) (*CityView, error) {
	v, err := p.variants.Get(variantKey)
	if err != nil {
		return nil, err
	}
	if v.App != AppCity {
		return nil, fmt.Errorf("%w: variant %q is not a city dashboard", domain.ErrInvalidSelection, v.Key)
	}
	cat, err := categoryBySlug(slug)
	if err != nil {
		return nil, err
	}

	risk, err := p.load(ctx, "city risk", p.datasets.CityRisk)
	if err != nil {
		return nil, err
	}
	p.count("city", risk.Len())

	view := &CityView{Variant: v, Category: cat}
	main, err := p.indexPanel(ctx, risk, mainIndex(cat))
	if err != nil {
		return nil, err
	}
	view.Panels = append(view.Panels, main)

	switch cat {
	case CategoryHazard:
		view.Hazard, err = p.hazardSummary(ctx, risk)
	case CategoryResilience:
		view.Capacities, err = p.capacities(ctx)
		for _, def := range capacityIndexes {
			if err != nil {
				break
			}
			var panel IndexPanel
			panel, err = p.indexPanel(ctx, risk, def)
			view.Panels = append(view.Panels, panel)
		}
	case CategoryCRI:
		err = p.riskIndexSections(risk, view)
	}
	if err != nil {
		return nil, err
	}
	return view, nil
}

// CityIndex returns the headline index panel of a category.
func (p *Pipeline) CityIndex(ctx context.Context, slug string) (IndexPanel, error) {
	cat, err := categoryBySlug(slug)
	if err != nil {
		return IndexPanel{}, err
	}
	risk, err := p.load(ctx, "city risk", p.datasets.CityRisk)
	if err != nil {
		return IndexPanel{}, err
	}
	return p.indexPanel(ctx, risk, mainIndex(cat))
}

// CityFeatures returns the city risk table coloured by column for a
// choropleth map. column must be one of CityColumns.
func (p *Pipeline) CityFeatures(ctx context.Context, column string) (*ZoneLayer, error) {
	if !slices.Contains(CityColumns(), column) {
		return nil, fmt.Errorf("%w: unknown city column %q", domain.ErrInvalidSelection, column)
	}
	risk, err := p.load(ctx, "city risk", p.datasets.CityRisk)
	if err != nil {
		return nil, err
	}
	if err := risk.Require(p.opts.KebeleColumn, column); err != nil {
		return nil, err
	}
	p.count("city_features", risk.Len())
	return &ZoneLayer{Table: risk, IDCol: p.opts.KebeleColumn, Color: column, Range: domain.RangeOf(risk, column)}, nil
}

func (p *Pipeline) indexPanel(ctx context.Context, risk *domain.Table, def indexDef) (IndexPanel, error) {
	keb := p.opts.KebeleColumn
	sorted, err := domain.TopN(risk, def.Column, false, 0)
	if err != nil {
		return IndexPanel{}, err
	}
	top, err := domain.GroupMean(risk, keb, def.Column)
	if err != nil {
		return IndexPanel{}, err
	}

	panel := IndexPanel{
		Column:     def.Column,
		Title:      def.Title,
		Bars:       make([]KebeleScore, len(sorted.Rows)),
		TopKebeles: top,
		Range:      domain.RangeOf(risk, def.Column),
	}
	for i, r := range sorted.Rows {
		panel.Bars[i] = KebeleScore{Kebele: r.Text(keb), Score: r.Get(def.Column)}
	}

	if def.Component != "" && p.datasets.Eigen.Path != "" {
		panel.Factors, err = p.factors(ctx, def.Component)
		if err != nil {
			return IndexPanel{}, err
		}
	}
	return panel, nil
}

func (p *Pipeline) factors(ctx context.Context, component string) ([]Factor, error) {
	eigen, err := p.load(ctx, "eigenvalue", p.datasets.Eigen)
	if err != nil {
		return nil, err
	}
	if err := eigen.Require(colRiskCom, colIndName, colIndEigen); err != nil {
		return nil, err
	}
	rows := domain.FilterEq(eigen, colRiskCom, component)
	out := make([]Factor, len(rows.Rows))
	for i, r := range rows.Rows {
		out[i] = Factor{Name: r.Text(colIndName), Eigenvalue: r.Get(colIndEigen)}
	}
	return out, nil
}

func (p *Pipeline) hazardSummary(ctx context.Context, risk *domain.Table) (*HazardSummary, error) {
	hazard, err := p.load(ctx, "hazard", p.datasets.Hazard)
	if err != nil {
		return nil, err
	}
	if err := hazard.Require(colRiskCom, colShockType, colSubcity, colSubcityCode, p.opts.KebeleColumn,
		colPopAff, colPopAffL, colImpSev, colImpSevL); err != nil {
		return nil, err
	}

	out := &HazardSummary{
		RecoveryRate: percentRate(risk, colRecovery),
		EWICoverage:  percentRate(risk, colEWI),
		FuturePlan:   percentRate(risk, colFuturePlan),
	}
	for _, class := range []string{NaturalHazard, EverydayHazard, Stressor} {
		hc, err := p.hazardClass(domain.FilterEq(hazard, colRiskCom, class), class)
		if err != nil {
			return nil, err
		}
		out.Classes = append(out.Classes, hc)
	}
	return out, nil
}

// percentRate is mean(col) as a percentage rounded to two places.
func percentRate(t *domain.Table, col string) *float64 {
	m, ok := domain.ColumnMean(t, col)
	if !ok {
		return nil
	}
	r := domain.Round(m*100, 2)
	return &r
}

func (p *Pipeline) hazardClass(rows *domain.Table, class string) (HazardClass, error) {
	hc := HazardClass{Class: class}

	common, err := domain.GroupMean(rows, colShockType, colPopAff)
	if err != nil {
		return hc, err
	}
	if top := domain.Head(common, 1); len(top) == 1 {
		hc.MostCommon = top[0].Key
	}
	severe, err := domain.GroupMean(rows, colShockType, colImpSev)
	if err != nil {
		return hc, err
	}
	if top := domain.Head(severe, 1); len(top) == 1 {
		hc.MostSevere = top[0].Key
	}

	shareRows := rows
	switch class {
	case NaturalHazard:
		shareRows = domain.Filter(rows, func(r domain.Row) bool { return r.Text(colShockType) != "Subsidence" })
	case Stressor:
		keep := make(map[string]bool)
		for _, s := range domain.Head(severe, 10) {
			keep[s.Key] = true
		}
		shareRows = domain.Filter(rows, func(r domain.Row) bool { return keep[r.Text(colShockType)] })
	}
	shares, err := domain.ShareWithinGroup(shareRows, p.opts.KebeleColumn, colImpSevL, colKebShare)
	if err != nil {
		return hc, err
	}
	shares, err = domain.TopN(shares, colSubcityCode, true, 0)
	if err != nil {
		return hc, err
	}
	hc.Shares = make([]ShockShare, len(shares.Rows))
	for i, r := range shares.Rows {
		hc.Shares[i] = ShockShare{
			Kebele:      r.Text(p.opts.KebeleColumn),
			SubcityCode: r.Text(colSubcityCode),
			ShockType:   r.Text(colShockType),
			Share:       r.Get(colKebShare),
		}
	}

	hc.Prevalence = make([]PrevalenceNode, len(rows.Rows))
	for i, r := range rows.Rows {
		hc.Prevalence[i] = PrevalenceNode{
			ShockType: r.Text(colShockType),
			Subcity:   r.Text(colSubcity),
			Kebele:    r.Text(p.opts.KebeleColumn),
			Value:     r.Get(colPopAffL),
		}
	}
	return hc, nil
}

func (p *Pipeline) capacities(ctx context.Context) ([]CapacityScore, error) {
	if p.datasets.Resilience.Path == "" {
		return nil, nil
	}
	dim, err := p.load(ctx, "resilience", p.datasets.Resilience)
	if err != nil {
		return nil, err
	}
	scaled, err := domain.ScaleColumn(dim, colFScore, colFScore100, 100, 0)
	if err != nil {
		return nil, err
	}
	means, err := domain.MeanBy(scaled, []string{p.opts.KebeleColumn, colRiskCom}, []string{colFScore100})
	if err != nil {
		return nil, err
	}
	out := make([]CapacityScore, len(means.Rows))
	for i, r := range means.Rows {
		out[i] = CapacityScore{Kebele: r.Text(p.opts.KebeleColumn), Capacity: r.Text(colRiskCom), Score: r.Get(colFScore100)}
	}
	return out, nil
}

func (p *Pipeline) riskIndexSections(risk *domain.Table, view *CityView) error {
	keb := p.opts.KebeleColumn
	factors := []string{colHRF, colCRF, colCRI}

	long, err := domain.Melt(risk, keb, factors, "risk_factor", "risk_score")
	if err != nil {
		return err
	}
	view.RiskFactors = make([]RiskFactorScore, len(long.Rows))
	for i, r := range long.Rows {
		view.RiskFactors[i] = RiskFactorScore{Kebele: r.Text(keb), Factor: r.Text("risk_factor"), Score: r.Get("risk_score")}
	}

	if err := risk.Require(colZones3); err != nil {
		return err
	}
	view.Designation = make([]KebeleZone, len(risk.Rows))
	for i, r := range risk.Rows {
		view.Designation[i] = KebeleZone{Kebele: r.Text(keb), Zone: r.Text(colZones3)}
	}

	means, err := domain.MeanBy(risk, []string{keb, colZones3}, factors)
	if err != nil {
		return err
	}
	view.ZoneFactors = make(map[string][]ZoneFactors, len(designationZones))
	for _, zone := range designationZones {
		rows, err := domain.TopN(domain.FilterEq(means, colZones3, zone), colHRF, false, 0)
		if err != nil {
			return err
		}
		zf := make([]ZoneFactors, len(rows.Rows))
		for i, r := range rows.Rows {
			zf[i] = ZoneFactors{Kebele: r.Text(keb), HRF: r.Get(colHRF), CRF: r.Get(colCRF), CRI: r.Get(colCRI)}
		}
		view.ZoneFactors[zone] = zf
	}
	return nil
}

// CityColumns lists the index columns a city map can be coloured by.
func CityColumns() []string {
	cols := []string{indexHazard.Column, indexSocial.Column, indexCoRI.Column, indexCRI.Column, colCRF, colZones3}
	for _, d := range capacityIndexes {
		cols = append(cols, d.Column)
	}
	return cols
}
