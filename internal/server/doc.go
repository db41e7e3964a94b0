// Package server runs the local callback server used by the login flow.
//
// [OAuthHandler] serves /callback on a chi router built by [NewRouter]. It checks the state
// parameter, exchanges the authorization code through an [Exchanger] (the token manager) and
// sends the single result through [OAuthHandler.Result]. [Listen] starts the server on a local
// address for as long as the login waits.
package server
