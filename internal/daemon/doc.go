// Package daemon hosts the long-running curator process: worker lifecycle,
// single-instance locking, scheduled maintenance, and the library watcher.
package daemon
