// Package pkg provides the core libraries behind objsync, a content-addressed
// object store synchronizer.
//
// # Overview
//
// objsync mirrors a remote's content-addressed object tree (commits,
// directory trees, directory metadata, and file content, each named by
// (checksum, type)) into a local store, fetching only what the local store
// doesn't already have and committing the result transactionally.
//
// # Architecture
//
// The typical data flow through a pull:
//
//	remote.Client (HTTP)
//	         ↓
//	    [pull] package (two-loop scan/fetch engine)
//	         ↓                ↓
//	  [fetcher] (concurrent   [store] (transactional
//	   HTTP downloads)         staging + commit)
//	         ↓
//	  [lock] (single-flight per remote), [history] (audit trail),
//	  [observability] (hooks for metrics/tracing)
//
// [graphing] separately renders a commit's reachable object closure as
// Graphviz DOT/SVG, read-only and without fetching anything.
//
// # Main Packages
//
// [objid] - Object identifiers: (checksum, type) pairs and the checksum
// encoding shared by every other package.
//
// [objects] - Wire formats for the four object kinds (Commit, DirTree,
// DirMeta, File), encoded with msgpack.
//
// [remote] - HTTP client for a remote's config, refs, and summary file.
//
// [store] - The local object store: existence checks, transactional
// staging, and ref resolution/writes.
//
// [fetcher] - Bounded-concurrency object downloads with retry.
//
// [httputil] - Shared HTTP retry helper.
//
// [pull] - The Scan Worker / Main Loop engine and the Orchestrator that
// drives one pull end to end, plus the live Status counters.
//
// [lock] - Mutual exclusion across concurrent pulls against the same
// remote (in-memory, file, or Redis backed).
//
// [history] - Per-pull audit records (no-op by default, MongoDB backed
// optionally).
//
// [observability] - No-op-by-default hooks for pull/fetch/lock events.
//
// [graphing] - Read-only object closure walk and DOT/SVG rendering.
//
// [objid]: https://pkg.go.dev/github.com/mirrorstore/objsync/pkg/objid
// [objects]: https://pkg.go.dev/github.com/mirrorstore/objsync/pkg/objects
// [remote]: https://pkg.go.dev/github.com/mirrorstore/objsync/pkg/remote
// [store]: https://pkg.go.dev/github.com/mirrorstore/objsync/pkg/store
// [fetcher]: https://pkg.go.dev/github.com/mirrorstore/objsync/pkg/fetcher
// [httputil]: https://pkg.go.dev/github.com/mirrorstore/objsync/pkg/httputil
// [pull]: https://pkg.go.dev/github.com/mirrorstore/objsync/pkg/pull
// [lock]: https://pkg.go.dev/github.com/mirrorstore/objsync/pkg/lock
// [history]: https://pkg.go.dev/github.com/mirrorstore/objsync/pkg/history
// [observability]: https://pkg.go.dev/github.com/mirrorstore/objsync/pkg/observability
// [graphing]: https://pkg.go.dev/github.com/mirrorstore/objsync/pkg/graphing
package pkg
