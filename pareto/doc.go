// Package pareto computes non-dominated sets.
//
// Objectives are minimized unless their Direction says otherwise; maximized
// objectives are negated before comparison. The set is always recomputed in
// full over the points supplied.
package pareto
