// Package oauth talks to external identity providers.
//
// [Client] turns a provider access token into a [Profile] by calling the
// provider's user-info endpoint. [Exchanger] turns an authorization code into
// an access token with golang.org/x/oauth2. Both run under a request timeout
// and report provider failures as [ErrProfileFetch] or [ErrExchange].
package oauth
