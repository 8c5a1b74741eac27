// Package problem describes an optimization problem and the collaborators the
// ledger calls out to.
//
// A Config is loaded from YAML (defaults, then file, then PARETODB_*
// environment variables) and validated. Every configuration that produced
// rows is kept as config_<id>.yaml next to the ledger so historical rows can
// be traced back to the settings in force when they were created.
//
// The ledger never looks inside an Optimizer, Predictor or Evaluator. They are
// pure functions of the configuration and the data handed to them.
package problem
