// Package domain models the precomputed risk tables behind the drought and
// city risk dashboards, and the selection operations applied to them.
//
// # Data Source
//
// Every table is a static artefact written by an offline analysis pipeline
// (regression-based vulnerability curves, extreme-value fitting, clustering).
// Nothing in this package recomputes those models; it only filters, derives
// and ranks what the files already contain.
//
// # Drought Tables
//
// Zone table (one row per reporting unit and metric type):
//
//	Zone-ID   zone identifier, unique within a reporting level
//	LReport   reporting level: insurance, livelihood or administrative zones
//	l_metric  risk metric type (e.g. PML, AAL variants)
//	loss_abs  absolute yield loss in KgDM/ha
//	loss_rel  relative yield loss as a fraction of exposure
//
// Derived columns (see [DeriveExposure]):
//
//	exposure        loss_abs / loss_rel, null when loss_rel is zero
//	yield_loss_pct  loss_rel clipped to [0, 1]
//
// Year-rank table (wide): one row per observation with a zone code column
// and one column per year holding a severity rank. [RankYears] takes the
// median per year and orders years from worst to best.
//
// # City Tables
//
// The city risk table has one row per kebele (the smallest administrative
// unit) with composite index scores: HRF (hazard risk factors), CRF
// (community risk factors), CRI (city risk index), social vulnerability,
// community resilience and its five capacity sub-indices, plus a zone
// designation (Zone A/B/C). Hazard, eigenvalue and resilience tables are long
// tables keyed by kebele and risk component.
//
// # Missing Values
//
// Cells that are empty, unparsable as numbers where numbers are expected, or
// non-finite (NaN, ±Inf) are null. Null values never contribute to bounds,
// means or medians and always sort last.
package domain
