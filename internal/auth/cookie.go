// Package auth resolves session cookies to user ids against the backend's
// session store. The cookie decode is synchronous and cheap; the store
// lookup runs on a dedicated worker so the accept path never blocks on
// MongoDB.
package auth

import (
	"net/http"
	"net/url"
	"strings"
)

// SessionCookie is the backend's auth cookie name.
const SessionCookie = "lila2"

// sessionKey is the form field holding the session id.
const sessionKey = "sessionId"

// SessionID extracts the session id from the request. The cookie value is
// an opaque signature and a URL-encoded form body joined by the first "-";
// the signature is skipped, not verified, and a value without a dash is
// decoded whole. Anything malformed reports false and the socket proceeds
// anonymously.
func SessionID(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	body := c.Value
	if i := strings.IndexByte(body, '-'); i >= 0 {
		body = body[i+1:]
	}
	form, err := url.ParseQuery(body)
	if err != nil {
		return "", false
	}
	sid := form.Get(sessionKey)
	if sid == "" {
		return "", false
	}
	return sid, true
}
