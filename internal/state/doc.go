// Package state owns the daemon's on-disk bookkeeping: the Status record
// (last sync time and pending changes) and the Liveness Marker (pid file
// guarded by an OS advisory lock).
//
// Both live in the state directory, which is kept outside the watched tree so
// writing them never feeds back into the change batcher.
package state
