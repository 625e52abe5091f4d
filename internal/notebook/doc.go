// Package notebook models Jupyter notebook documents in the nbformat v4
// interchange schema and provides a codec that reads them and writes them
// back in the same layout nbformat itself produces.
//
// Only the fields the runner and the engines touch are typed. Anything else
// found on the notebook, a cell or an output is kept verbatim and written
// back unchanged.
package notebook
