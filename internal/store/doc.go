// Package store implements the tiered key/value store shared by scripts.
//
// Every entry is addressed by (scope, owner, key). Three scopes exist,
// narrowest to widest:
//
//   - Instance: owner is one script loaded into one instance. Invisible to
//     other instances, even of the same script.
//   - Script: owner is the script identity. Shared by all instances running
//     that script.
//   - Global: no owner. Shared by every script and instance.
//
// The contract is identical at every tier: Set overwrites atomically, Get
// distinguishes absence from a stored null, Unset is idempotent, and
// Keys/All return a snapshot consistent at a single point in time.
//
// Consistency: the SQLite backing funnels all operations through a single
// writer connection, so each operation on one key is atomic and totally
// ordered relative to other operations on that key. There is no cross-key
// transactional guarantee - an All snapshot is consistent per call, not
// synchronized with a concurrent multi-key write sequence.
package store
