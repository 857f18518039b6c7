// Package watcher implements the local change batcher: it watches the sync
// paths with fsnotify, collects changed paths into a pending set, and triggers
// one sync per quiet period.
package watcher
