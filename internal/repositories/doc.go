// Package repositories implements SQLite persistence for the models store interfaces.
//
// Rows are scanned with scany's sqlscan. Every query that returns tracks joins the album
// (alias al) so compiled criteria predicates can reference both tables.
//
// Key Implementations:
//   - [UserRepository] : users and token updates
//   - [AlbumRepository], [ArtistRepository] : insert-or-ignore catalog rows
//   - [TrackRepository] : favorited tracks with artist links and filtered lookups
//   - [LabelRepository] : labels and static membership
//   - [PlaylistRepository] : label playlists
package repositories
