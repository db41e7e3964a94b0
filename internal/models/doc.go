// Package models defines domain entities and persistence interfaces for spotlabel.
//
// Entities mirror the SQLite schema:
//   - [User] : a Spotify account with its current token pair
//   - [Album], [Artist] : catalog rows created the first time a favorite references them
//   - [Track] : a user's favorited track, immutable once stored
//   - [Label] : a static (hand-tagged) or smart (criteria-driven) grouping of tracks
//   - [Playlist] : the Spotify playlist materializing a label
//
// Every entity implements Validate. The Store interfaces describe the only operations the
// sync engine needs; [TrackFilter] is the seam through which compiled criteria reach the store.
package models
