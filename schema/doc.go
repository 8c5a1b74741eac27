// Package schema maps the ledger's semantic fields to physical columns.
//
// For a problem with n_var design variables and n_obj objectives the table
// holds, in order:
//
//	x1..x{n_var}                  real
//	f1..f{n_obj}                  real
//	f1_expected..f{n_obj}_expected       real
//	f1_uncertainty..f{n_obj}_uncertainty real
//	is_pareto                     boolean
//	config_id                     integer
//	batch_id                      integer
//
// A Schema is immutable once built.
package schema
