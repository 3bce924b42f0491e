package domain

import (
	"fmt"
	"regexp"
	"slices"
)

// yearColumnRe matches the year columns of the wide year-rank table.
var yearColumnRe = regexp.MustCompile(`^(19|20)\d{2}$`)

// YearRank is the median severity rank of one year.
type YearRank struct {
	Year         string `json:"year"`
	Rank         Value  `json:"rank"`
	Observations int    `json:"observations"`
}

// YearRanking orders years from worst ("bad years", highest median rank) and
// from best ("good years", highest 1 − rank). Zone is nil for the aggregate
// ranking over all zones.
type YearRanking struct {
	Zone      *int       `json:"zone,omitempty"`
	BadYears  []YearRank `json:"bad_years"`
	GoodYears []YearRank `json:"good_years"`
}

// YearColumns returns the columns of t that look like four-digit years.
func YearColumns(t *Table) []string {
	var out []string
	for _, c := range t.Columns {
		if yearColumnRe.MatchString(c) {
			out = append(out, c)
		}
	}
	return out
}

// RankYears ranks years by the median rank across the observations of one
// zone (or all zones when zone is nil). When years is empty, year columns are
// detected from the schema. Years without any observation carry a null rank
// and sort last.
func RankYears(t *Table, zoneCol string, zone *int, years []string) (YearRanking, error) {
	if len(years) == 0 {
		years = YearColumns(t)
	}
	if len(years) == 0 {
		return YearRanking{}, fmt.Errorf("%w: no year columns", &SchemaError{Path: t.Source, Column: "<year>"})
	}
	if err := t.Require(years...); err != nil {
		return YearRanking{}, err
	}

	rows := t
	if zone != nil {
		if err := t.Require(zoneCol); err != nil {
			return YearRanking{}, err
		}
		code := float64(*zone)
		rows = Filter(t, func(r Row) bool {
			f, ok := r.Float(zoneCol)
			return ok && f == code
		})
	}

	bad := make([]YearRank, len(years))
	for i, y := range years {
		vals := rows.Floats(y)
		bad[i] = YearRank{Year: y, Rank: median(vals), Observations: len(vals)}
	}

	good := make([]YearRank, len(bad))
	for i, yr := range bad {
		rank := Null()
		if f, ok := yr.Rank.Float(); ok {
			rank = Number(1 - f)
		}
		good[i] = YearRank{Year: yr.Year, Rank: rank, Observations: yr.Observations}
	}

	byRankDesc := func(a, b YearRank) int { return compareNullLast(a.Rank, b.Rank, false) }
	slices.SortStableFunc(bad, byRankDesc)
	slices.SortStableFunc(good, byRankDesc)

	return YearRanking{Zone: zone, BadYears: bad, GoodYears: good}, nil
}

// median returns the median of vals, null when vals is empty. vals is sorted
// in place.
func median(vals []float64) Value {
	n := len(vals)
	if n == 0 {
		return Null()
	}
	slices.Sort(vals)
	if n%2 == 1 {
		return Number(vals[n/2])
	}
	return Number((vals[n/2-1] + vals[n/2]) / 2)
}
