// Package batch runs a tool operation over several ids and reports a
// result per id, so one failing job does not hide the outcome of the
// others.
package batch
