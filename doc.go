// Package firmstore is the sharded data layer of a firmware download
// catalog. The catalog's documents (brands, series, firmware files, flashing
// tools, settings) are spread across a fixed, ordered set of schema-identical
// document stores, each backed by a pluggable blob backend (filesystem, S3,
// or Google Cloud Storage).
//
// The shard order is part of the contract: shard 0 is the primary and
// receives all new documents, point reads probe shards in order and stop at
// the first hit, and cross-shard listings resolve duplicate ids in favor of
// the earliest shard. Listings and searches fan out to every shard in
// parallel and fail as a whole if any shard fails.
//
// Search is two-phase: prefix matches over brand names, series names and
// lower-cased firmware file names, then expansion of brand/series hits into
// their firmware via foreign-key membership queries. Both phases are served
// by per-shard Redis indexes when available and fall back to collection
// scans when not.
package firmstore
