// Package cache defines the disk-backed store manager responsible for
// translating versioned store names into StoragePath/<store>/ directories of
// immutable response snapshots (status, headers, body, stored-at time). The
// manager exposes read/write primitives with safe semantics (temp file +
// rename, one entry per key) plus whole-store deletion used exclusively by the
// lifecycle controller during activation. Strategies depend on this package to
// serve cached responses or persist fresh fetches without duplicating
// filesystem logic.
package cache
