// Package git reconciles a local working tree with a single remote branch.
//
// A Repository is opened (or initialized) once per daemon and then driven
// through Pull, Push and Sync:
//   - Pull fetches the branch and either does nothing, fast-forwards, or, when
//     the histories diverged, saves local HEAD on a backup_YYYYMMDD_HHMMSS
//     branch and hard-resets to the remote tip.
//   - Push commits every uncommitted change as one auto-commit and pushes the
//     branch.
//
// Repository is safe for concurrent use but callers are expected to serialize
// cycles themselves; the daemon routes everything through a single queue.
package git
