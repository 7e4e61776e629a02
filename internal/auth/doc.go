// Package auth provides bearer-token authentication for the HTTP API.
//
// Tokens are HS256 JWTs whose "sub" claim is a user id and which must carry
// an expiry. Middleware verifies the token, confirms the user still exists,
// and stores an Identity in the request context. Handlers call CheckSubject
// to make sure a request only reads or writes the authenticated user's
// conversations.
//
// When no secret is configured the gateway does not install the middleware,
// FromContext returns nil, and CheckSubject allows everything.
package auth
