// Package errors provides the classified error primitives used across ghsync.
//
// A ClassifiedError carries a category (config, auth, network, git, lock, ...),
// a severity and a retry strategy, so the daemon can decide whether a failed
// sync cycle is simply abandoned until the next trigger or whether the command
// must stop.
//
//	err := errors.NetworkError("fetch failed").
//		WithContext("remote", remoteURL).
//		WithCause(originalErr).
//		Build()
package errors
