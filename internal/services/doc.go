// Package services talks to the Spotify Web API.
//
// # Sessions and tokens
//
// A [Session] carries one user's token pair through a single operation. [TokenManager]
// refreshes the access token with golang.org/x/oauth2 when it has expired, persists the new
// pair through a models.UserStore and updates the session so later calls reuse it.
//
// # Calls
//
// [Client.Call] is the only path to the API: it ensures a valid token, waits on the rate
// limiter, sends the request and decodes the body into a [Validator]. Failures are typed:
//   - [*APIError] : non-2xx response (wraps [shared.ErrAPIRequest])
//   - [shared.ErrValidation] : body could not be decoded or failed Validate
//   - [shared.ErrRefreshFailed] : the refresh token was rejected
//
// No request is retried.
//
// # Endpoints
//
// [Spotify] wraps the endpoints the sync engine uses: profile, saved tracks, several artists,
// playlist creation and playlist item replace/add/remove.
package services
