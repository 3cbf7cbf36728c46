// Package urlredact hides a password embedded in a connection URI for
// logging and error messages, grounded on
// original_source/dbcrossbar/src/url_with_hidden_password.rs.
package urlredact

import "net/url"

// String returns rawURL with any userinfo password replaced by "XXXXXX". A
// URL that fails to parse, or carries no password, is returned unchanged.
func String(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	if _, hasPassword := u.User.Password(); !hasPassword {
		return rawURL
	}
	redacted := *u
	redacted.User = url.UserPassword(u.User.Username(), "XXXXXX")
	return redacted.String()
}
