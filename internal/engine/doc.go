// Package engine defines the contract between the runner and whatever
// actually executes a notebook. Engines run every code cell in document order
// inside a kernel and populate the cells' outputs in place.
//
// Concrete engines live in sub-packages: nbconvert drives a local
// `jupyter nbconvert --execute` process, kernel talks to a Jupyter Server.
package engine
