// Package criteria compiles smart-label criteria into track filters.
//
// A criteria string is a small predicate language over track attributes:
//
//	explicit = false and (artist = "Slowdive" or genre ~ 'shoegaze')
//	added >= 2024-01 and not label = "skip"
//	released < 1990
//
// Precedence is not > and > or; parentheses group. Keywords are case-insensitive and
// the symbolic forms &&, || and ! are accepted. See [Attributes] for the identifiers.
//
// Dates compare at the coarser of the two precisions: released = 1999-07-15 matches an album
// stored as "1999-07" or "1999", and released < 1999-05-01 does not match "1999".
//
// [Compile] parses and type-checks the text into a closed AST ([Node]) and renders it as a
// parameterized SQL predicate over the tracks table (alias t) joined with albums (alias al).
// Compilation never touches the store and never panics; invalid input is reported as an
// [*Error] wrapping shared.ErrInvalidCriteria.
package criteria
