package news

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

var trackingQueryParams = map[string]struct{}{
	"gclid":   {},
	"dclid":   {},
	"fbclid":  {},
	"msclkid": {},
	"igshid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref_src": {},
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, ok := trackingQueryParams[key]
	return ok
}

// URLKey normalizes a URL for duplicate detection: scheme, fragment, "www.",
// default ports, trailing slashes and tracking parameters are ignored, the
// remaining query is sorted. Unparseable input falls back to its lowercased text.
func URLKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err == nil && parsed.Host == "" && !strings.HasPrefix(raw, "/") {
		parsed, err = url.Parse("https://" + strings.TrimPrefix(raw, "//"))
	}
	if err != nil || parsed.Host == "" {
		return strings.ToLower(raw)
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if port := parsed.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}

	cleanPath := "/"
	if parsed.Path != "" {
		cleanPath = path.Clean("/" + parsed.Path)
	}
	cleanPath = strings.TrimSuffix(cleanPath, "/")

	query := parsed.Query()
	keys := make([]string, 0, len(query))
	for key := range query {
		if isTrackingParam(key) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(host)
	b.WriteString(cleanPath)
	for i, key := range keys {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		values := append([]string(nil), query[key]...)
		sort.Strings(values)
		for j, value := range values {
			if j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(value))
		}
	}
	return b.String()
}

// TitleKey lowercases a title and collapses runs of whitespace.
func TitleKey(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
