// Package google loads the OAuth client configuration for Gmail and Drive and
// stores user tokens.
//
// The server keeps tokens in the caller's session and never touches disk.
// The CLI persists one token per named account under the user cache
// directory through FileTokenProvider, so `attachsort login` and
// `attachsort sort` can run unattended.
package google
