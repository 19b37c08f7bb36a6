// Package redisstore keeps catalog records in Redis.
//
// It satisfies the same record contract as the SQLite store: ListAll returns
// records in insertion order, Get and UpdateFields report ErrNotFound for
// unknown ids, and UpdateFields merges into the stored attributes.
//
// Layout, with every key namespaced so several catalogs can share a server:
//
//	formulary:{ns}:record:{id}   hash of attribute name → JSON-encoded value
//	formulary:{ns}:records       sorted set of record ids scored by insertion sequence
//	formulary:{ns}:record_seq    insertion sequence counter
//
// Existence is tracked by the sorted set, so a record with no attributes has
// no hash at all. Inserts and updates run as Lua scripts to stay atomic.
package redisstore
