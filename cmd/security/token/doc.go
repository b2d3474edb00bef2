// Package token verifies and issues bearer credentials.
//
// Credentials are HS256 JWTs carrying a user_id claim. Tokens minted by the
// original account service also carry token_type; when present it must be
// "access". The issuer is enforced only when one is configured.
package token
