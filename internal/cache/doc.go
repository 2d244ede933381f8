// Package cache stores generated clips keyed by request fingerprint so identical
// generation requests are served without calling the generation service.
//
// Three backends share the Store interface: an in-process sharded map, a SQLite table
// (the default, persistent across runs), and Redis for caches shared between hosts.
// Open picks one from configuration and wraps it in a Cache that tracks hit, miss, and
// put counts.
package cache
