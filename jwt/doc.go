// Package jwt issues and verifies the HS256 access and refresh tokens used by
// the session lifecycle.
//
// Access tokens carry {userId, roleId, roleName} and are verified statelessly.
// Refresh tokens carry {tokenId, userId}; tokenId is the id of the persisted
// refresh-token row, so a refresh token is only honoured after the caller
// matches it against storage.
//
// Verification fails closed. The returned error always wraps one of
// [ErrExpired], [ErrInvalidSignature], [ErrNotYetValid], [ErrMalformed] or
// [ErrInvalid].
package jwt
