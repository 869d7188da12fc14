// Package password hashes and verifies passwords with Argon2id.
//
// A server-side pepper is appended to the plaintext before hashing, so a leaked
// table of PHC strings is not enough to mount an offline attack. Verification
// uses a constant-time comparison and reads the cost parameters from the stored
// hash, which lets [Hasher.NeedsUpgrade] flag hashes produced with older costs.
//
// Password policy (length, reuse) belongs to the caller.
package password
