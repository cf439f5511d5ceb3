// Package services defines the [Remote] interface for remote archive storage and implements it for Google Drive.
//
// # Remote Interface
//
// The pipeline consumes two operations: list a folder and stream one file. Everything else about the
// provider (auth, paging, quotas) stays behind the interface.
//
// # Google Drive Implementation
//
// [DriveService] uses OAuth2 for authentication with automatic token refresh.
// Refreshed tokens are written back to remote.token_path so later runs reuse them.
//
// Listing follows nextPageToken until the folder is exhausted. Downloads fetch file metadata
// for the name and size, then stream alt=media without buffering.
//
// # Rate Limiting
//
// [APIService] waits on a [rate.Limiter] before every request, configured by remote.rate_limit.
//
// # Error Handling
//
// Every failure is wrapped in [shared.ErrTransport], with a second sentinel for the cause:
//   - [shared.ErrNotAuthenticated] : missing token, 401 or 403
//   - [shared.ErrRemoteNotFound] : 404
//   - [shared.ErrServiceUnavailable] : 429 or 5xx
package services
