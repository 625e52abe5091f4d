// Package hcl provides the concrete HCL implementation of the run-file
// Loader defined in the `config` package. It is responsible for parsing,
// evaluating expressions against the process environment and translating
// the result into the format-agnostic model.
package hcl
