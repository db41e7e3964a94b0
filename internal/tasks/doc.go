// Package tasks runs the operations of spotlabel: pulling favorites from Spotify, pushing labels
// to Spotify as playlists, and managing labels.
//
// # Favorites pull
//
// [Engine.PullFavorites] walks the saved-track feed newest first. The first page is small
// ([InitialPageSize]); each page is applied oldest first so albums and artists exist before the
// tracks that reference them. Album upserts and artist lookups for a page run concurrently.
// A page holding any already-known track ends the pull, which makes a repeated pull write nothing.
//
// # Playlist push
//
// [Engine.PushPlaylists] provisions a private playlist for every label that lacks one, then
// replaces each playlist's contents with the label's tracks:
//   - chunks of [ChunkSize] URIs, the first replacing and the rest appending, in order
//   - an empty set is sent as the placeholder track and then removed
//   - a smart label whose criteria fail is pushed empty and counted in [PushResult.Skipped]
//
// Provisioning and pushes run concurrently across labels, bounded by [Options.Concurrency].
//
// # Labels
//
// [Labels] creates labels, checks criteria before they are saved, tags static labels and
// resolves or exports a label's tracks.
//
// # Progress Reporting
//
// Operations accept an optional channel of [ProgressUpdate]. Sends never block; updates are
// dropped when the channel is full.
package tasks
