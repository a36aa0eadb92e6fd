// Package retention runs a background sweep that deletes records older than
// a retention window from an external record store.
package retention
