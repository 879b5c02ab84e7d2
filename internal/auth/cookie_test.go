package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWithCookie(value string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: value})
	return r
}

func TestSessionID(t *testing.T) {
	sid, ok := SessionID(requestWithCookie("sig123-sessionId=abc123"))
	require.True(t, ok)
	assert.Equal(t, "abc123", sid)
}

func TestSessionIDSkipsOnlyFirstDash(t *testing.T) {
	// The signature ends at the first dash; later dashes belong to the body.
	sid, ok := SessionID(requestWithCookie("sig-sessionId=ab-cd&other=1"))
	require.True(t, ok)
	assert.Equal(t, "ab-cd", sid)
}

func TestSessionIDFormDecodes(t *testing.T) {
	sid, ok := SessionID(requestWithCookie("sig-a=1&sessionId=x%2Fy"))
	require.True(t, ok)
	assert.Equal(t, "x/y", sid)
}

func TestSessionIDUnsignedValue(t *testing.T) {
	// No dash means no signature; the whole value is the form body.
	sid, ok := SessionID(requestWithCookie("sessionId=abc123"))
	require.True(t, ok)
	assert.Equal(t, "abc123", sid)
}

func TestSessionIDMalformed(t *testing.T) {
	cases := []string{
		"nosession",
		"sig-",
		"sig-other=1",
		"sig-%zz",
	}
	for _, v := range cases {
		_, ok := SessionID(requestWithCookie(v))
		assert.False(t, ok, v)
	}

	// No cookie at all.
	_, ok := SessionID(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}
