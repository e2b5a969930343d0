// Package core provides the normalization engine for the IMDB loader.
//
// This package is the heart of the loader, containing all dataset logic
// independent of the relational store and of any transport layer. It can be
// driven by the pipeline, CLI tools, or tests without modification.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Entity kinds: a closed set ([KindFilm], [KindPerson], [KindCastLink],
//     [KindRating]), each with a registered [TableDefinition].
//   - Streaming: [RecordStream] reads one delimited source file lazily and
//     reports byte progress.
//   - State: referential indices ([IDSet]) and auxiliary lookup indices
//     ([AuxIndex]) owned by one run and passed to every normalizer.
//   - Output: [TableWriter] writes one CSV file per table, [SplitFile] fans
//     it out into chunk files for parallel loading.
//
// # Table Registry
//
// Normalizers are registered at init time using [Register]. Each
// [TableDefinition] names the source columns it requires and the function
// that turns a source record into a normalized row:
//
//	core.Register(core.TableDefinition{
//	    Kind:          core.KindRating,
//	    SourceColumns: []string{"tconst", "averageRating", "numVotes"},
//	    Normalize:     normalizeRating,
//	})
//
// # Normalization
//
// Sources are processed strictly in kind order on a single goroutine. A record
// is accepted only when every id it references is already present in the
// indices built so far; otherwise it is dropped and added to the
// [ErrorReport]. Memory stays O(indices), rows are streamed straight to disk.
//
// # Error Handling
//
// Every rejected record carries a code for support reference:
//
//   - REC001: malformed record (field count, identifier, number)
//   - REC002: duplicate primary key
//   - REF001: dangling reference
//   - LOAD001: bulk copy failure
//   - CFG001: configuration error
package core
