// Package dsl implements the condition expression language used by workflow
// step conditions and validation gates.
//
// Expressions are evaluated over a variable map built from the run inputs
// and prior step results, e.g.:
//
//	detect.success && detect.output != ""
//	inputs.severity >= 3 or force == true
//
// The evaluator never executes dynamic code: expressions are tokenized and
// evaluated by a small recursive-descent parser.
package dsl
