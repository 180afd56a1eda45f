// Package catalog maintains a SQLite index over a directory of recorded
// cassettes so list/search operations don't reparse every file.
//
// The index is derivative: cassette files on disk are the source of truth,
// and re-running Index rebuilds rows idempotently (upsert keyed on path).
package catalog
