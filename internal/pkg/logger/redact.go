package logger

import (
	"net/url"
	"regexp"
)

// RedactSecret masks a credential value for safe logging, keeping just
// enough of a prefix to tell secrets apart.
// "hunter2trailing" → "hu***"
// Values of 4 chars or fewer are fully masked: "abc" → "***"
func RedactSecret(val string) string {
	if len(val) > 4 {
		return val[:2] + "***"
	}
	return "***"
}

var dsnPasswordRegex = regexp.MustCompile(`(password=)\S+`)

// RedactDSN masks the password portion of a connection string.
// Both URL form ("postgres://app:hunter2@db/comandero") and key-value
// form ("host=db password=hunter2") are handled. Strings without a
// password pass through unchanged.
func RedactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "***")
			return u.String()
		}
	}
	return dsnPasswordRegex.ReplaceAllString(dsn, "${1}***")
}
