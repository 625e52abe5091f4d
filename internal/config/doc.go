// Package config defines the format-agnostic model of a run file, along with
// the Loader interface concrete formats implement.
//
// The `config.RunFile` is overlaid onto the application configuration by the
// `cli` package; flags given on the command line always win. Concrete
// implementations of the Loader, such as for HCL, are provided in separate
// packages.
package config
