// Package ytarchive keeps a local record of played and archived YouTube
// videos consistent with numbered archive playlists on the user's account.
//
// # Overview
//
// The platform caps a playlist at 5000 items, so a "watch later" archive
// grows as a series of private playlists named "{user}'s Archive #{n}".
// ytarchive places each archived video into the oldest container with room,
// creating the next one when all are full, and remembers per tracked channel
// which videos were played and where each archived video lives.
//
// Because the playlists can also be edited on the website, every session
// starts with a reconciliation pass that makes local state equal to the
// remote membership of the containers.
//
// Command Line
//
//	ytarchive auth login                 # authorize once
//	ytarchive track @somechannel         # start tracking a channel
//	ytarchive videos UCxxxxx --played no # list unplayed uploads
//	ytarchive archive dQw4w9WgXcQ        # file a video into the archive
//	ytarchive sync                       # reconcile explicitly
//
// # Configuration
//
// Settings are read from config.yaml in the user config directory (or the
// file given with --config) and may be overridden by environment variables:
//
//  1. Environment variables (highest priority), e.g. YTARCHIVE_LOG_LEVEL
//  2. Config file
//  3. Default values (lowest priority)
//
// # Error Handling
//
// Checking for sentinel errors:
//
//	if errors.Is(err, ytarchive.ErrChannelNotTracked) {
//		fmt.Println("track the channel first")
//	}
//
// Extracting wrapped error details:
//
//	var remoteErr *ytarchive.RemoteError
//	if errors.As(err, &remoteErr) && remoteErr.Retryable {
//		fmt.Printf("%s failed transiently: %v\n", remoteErr.Op, remoteErr.Err)
//	}
//
// Packages
//
//   - internal/archive: allocation, reconciliation, tracking and queries
//   - internal/youtube: the Data API client, pagination and metadata cache
//   - internal/storage: JSON and SQLite state stores
//   - internal/transport: rate limiting and circuit breaking
//   - internal/auth: OAuth token handling and user identity
//   - cli: the command tree
package ytarchive
