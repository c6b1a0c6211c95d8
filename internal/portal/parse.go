package portal

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the portal markup.
const (
	selectorLoginForm     = "form#form1"
	selectorLoginUser     = `input[name="form_benutzer"]`
	selectorLoginPassword = `input[name="form_passwort"]`
	selectorLoginSubmit   = `input[name="submit"]`
	selectorLogout        = `a[href="login.php?log=out"]`
	selectorUsername      = "#about-us"
	selectorGalleryLink   = `#content .cont_box a[href^="video.php?id"]`
	selectorVideoContent  = "#content_big"
	selectorVideoTitle    = "h2"
	selectorDownloadLink  = `a[href^="download.php?id"]`
)

var videoIDPattern = regexp.MustCompile(`(?i)id=(\d+)`)

func parseDocument(page, html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, structureErr(page, "parse html: %v", err)
	}
	return doc, nil
}

// IsAuthenticated reports whether the page shows the logout link.
func IsAuthenticated(html string) bool {
	doc, err := parseDocument("", html)
	if err != nil {
		return false
	}
	return doc.Find(selectorLogout).Length() > 0
}

// Username returns the signed-in user name shown in the page header, or "".
func Username(html string) string {
	doc, err := parseDocument("", html)
	if err != nil {
		return ""
	}
	sel := doc.Find(selectorUsername).First()
	if sel.Length() == 0 {
		return ""
	}
	sel.Find("i").Remove()
	return FixText(sel.Text())
}

// CheckLoginForm verifies the login form carries the expected fields.
func CheckLoginForm(html string) error {
	doc, err := parseDocument("login", html)
	if err != nil {
		return err
	}
	form := doc.Find(selectorLoginForm).First()
	if form.Length() == 0 {
		return structureErr("login", "form %s not found", selectorLoginForm)
	}
	for _, field := range []string{selectorLoginUser, selectorLoginPassword, selectorLoginSubmit} {
		if form.Find(field).Length() == 0 {
			return structureErr("login", "field %s missing from login form", field)
		}
	}
	return nil
}

// ParseLastVideoID extracts the id of the first gallery entry.
func ParseLastVideoID(html string) (int64, error) {
	doc, err := parseDocument("gallery", html)
	if err != nil {
		return 0, err
	}
	href, ok := doc.Find(selectorGalleryLink).First().Attr("href")
	if !ok {
		return 0, structureErr("gallery", "no video link matches %s", selectorGalleryLink)
	}
	m := videoIDPattern.FindStringSubmatch(href)
	if m == nil {
		return 0, structureErr("gallery", "video link %q carries no id", href)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, structureErr("gallery", "video link %q carries invalid id", href)
	}
	return id, nil
}

// ParseMetadata reads a video page. It returns nil when the page has no
// video content, which the portal serves for deleted or unpublished ids.
func ParseMetadata(html, pageURL string, id int64) (*Metadata, error) {
	doc, err := parseDocument("video", html)
	if err != nil {
		return nil, err
	}
	content := doc.Find(selectorVideoContent).First()
	if content.Length() == 0 {
		return nil, nil
	}
	title := content.Find(selectorVideoTitle).First()
	link := content.Find(selectorDownloadLink).First()
	href, ok := link.Attr("href")
	if title.Length() == 0 || !ok {
		return nil, nil
	}

	meta := &Metadata{
		ID:        id,
		Name:      FixText(title.Text()),
		SourceURL: pageURL,
	}
	if download, err := resolveDownload(pageURL, strings.TrimSpace(href)); err == nil {
		meta.DownloadURL = download
	}
	return meta, nil
}

// resolveDownload anchors href at the page origin.
func resolveDownload(pageURL, href string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	origin := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return origin.ResolveReference(ref).String(), nil
}

// VideoURL returns the page for id under baseURL.
func VideoURL(baseURL string, id int64) string {
	return strings.TrimRight(baseURL, "/") + "/video.php?id=" + strconv.FormatInt(id, 10)
}
