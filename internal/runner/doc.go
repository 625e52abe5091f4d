// Package runner implements the analysis run: execute a notebook through an
// engine, pull the regime summary out of its stream outputs, and persist the
// executed notebook and the summary as a pair of timestamped artifacts.
package runner
