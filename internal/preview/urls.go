package preview

import (
	"net/url"
	"strings"
)

// OfficeViewerBase is the embeddable Office Online viewer.
const OfficeViewerBase = "https://view.officeapps.live.com/op/embed.aspx?src="

// AbsoluteURL resolves ref against origin. A relative ref is a raw asset
// path and is escaped as a whole, so '%', '#' and '?' stay in the file name.
// It returns "" when there is no origin or the result is not an http(s) URL.
func AbsoluteURL(origin, ref string) string {
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		if u.Scheme == "http" || u.Scheme == "https" {
			return u.String()
		}
		return ""
	}
	if origin == "" {
		return ""
	}
	base, err := url.Parse(strings.TrimRight(origin, "/") + "/")
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return ""
	}
	return base.ResolveReference(&url.URL{Path: ref}).String()
}

// OfficeViewerURL wraps an absolute document URL for the office viewer.
func OfficeViewerURL(abs string) string {
	return OfficeViewerBase + url.QueryEscape(abs)
}
