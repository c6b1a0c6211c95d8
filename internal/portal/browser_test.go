package portal

import (
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
)

func TestCookieHeader(t *testing.T) {
	header := CookieHeader([]*network.Cookie{
		{Name: "PHPSESSID", Value: "abc123"},
		nil,
		{Name: "", Value: "orphan"},
		{Name: "lang", Value: "de"},
	})
	assert.Equal(t, "PHPSESSID=abc123; lang=de", header.Get("Cookie"))

	assert.Empty(t, CookieHeader(nil).Get("Cookie"), "no cookies means no header")
}
