package stream

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// ErrMalformedTrigger reports a trigger URL without a usable segment index.
var ErrMalformedTrigger = errors.New("malformed stream trigger url")

// Template expands segment indices into URLs of the form prefix+N+suffix.
type Template struct {
	Prefix string
	Suffix string
	Start  int
	// Width is the zero-padded digit count, or 0 when the index is unpadded.
	Width int
}

// ParseTemplate extracts the segment template from the first observed segment
// URL. The index is the last decimal run in the URL path before the file
// extension; the query string is carried in the suffix untouched.
func ParseTemplate(raw string) (Template, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Template{}, fmt.Errorf("%w: %q", ErrMalformedTrigger, raw)
	}

	if parsed.Path == "" || strings.HasSuffix(parsed.Path, "/") {
		return Template{}, fmt.Errorf("%w: no segment file in %q", ErrMalformedTrigger, raw)
	}
	pathEnd := len(raw)
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		pathEnd = i
	}
	// Search only the final path element so digits in the host or in
	// directory names are never mistaken for the index.
	baseStart := strings.LastIndex(raw[:pathEnd], "/") + 1
	base := raw[baseStart:pathEnd]
	stem := base
	if ext := path.Ext(base); ext != "" {
		stem = base[:len(base)-len(ext)]
	}

	end := -1
	for i := len(stem) - 1; i >= 0; i-- {
		if isDigit(stem[i]) {
			end = i + 1
			break
		}
	}
	if end < 0 {
		return Template{}, fmt.Errorf("%w: no segment index in %q", ErrMalformedTrigger, raw)
	}
	start := end
	for start > 0 && isDigit(stem[start-1]) {
		start--
	}
	digits := stem[start:end]
	index, err := strconv.Atoi(digits)
	if err != nil {
		return Template{}, fmt.Errorf("%w: segment index %q: %v", ErrMalformedTrigger, digits, err)
	}

	tmpl := Template{
		Prefix: raw[:baseStart+start],
		Suffix: raw[baseStart+end:],
		Start:  index,
	}
	if len(digits) > 1 && digits[0] == '0' {
		tmpl.Width = len(digits)
	}
	return tmpl, nil
}

// URL renders the segment URL for index n.
func (t Template) URL(n int) string {
	if t.Width > 0 {
		return fmt.Sprintf("%s%0*d%s", t.Prefix, t.Width, n, t.Suffix)
	}
	return t.Prefix + strconv.Itoa(n) + t.Suffix
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
