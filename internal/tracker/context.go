package tracker

import (
	"net/url"
	"strings"
	"time"

	"github.com/Priya8975/trackflow/internal/domain"
)

// UTMKeys are the query parameters recognized as campaign tracking fields.
var UTMKeys = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}

// UTMParams extracts the recognized UTM keys present in a query string. A
// leading "?" is allowed. Unrecognized keys are ignored.
func UTMParams(rawQuery string) map[string]string {
	// ParseQuery keeps whatever it could parse on error
	values, _ := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))

	out := make(map[string]string)
	for _, key := range UTMKeys {
		if vs, ok := values[key]; ok && len(vs) > 0 {
			out[key] = vs[0]
		}
	}
	return out
}

// UTMFromURL extracts UTM parameters from a full URL.
func UTMFromURL(raw string) map[string]string {
	u, err := url.Parse(raw)
	if err != nil {
		return map[string]string{}
	}
	return UTMParams(u.RawQuery)
}

func queryOf(raw string) url.Values {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return u.Query()
}

// PageInfo is what the host knows about the page being viewed.
type PageInfo struct {
	URL      string
	Title    string
	Referrer string
}

func pageContext(info PageInfo) domain.PageContext {
	pc := domain.PageContext{
		URL:      info.URL,
		Title:    info.Title,
		Referrer: info.Referrer,
		UTM:      UTMFromURL(info.URL),
	}
	if u, err := url.Parse(info.URL); err == nil {
		pc.Path = u.Path
		pc.Host = u.Hostname()
	}
	return pc
}

// BrowserFamily maps a user agent to a coarse browser name.
func BrowserFamily(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Edg"):
		return "Edge"
	case strings.Contains(userAgent, "Chrome"):
		return "Chrome"
	case strings.Contains(userAgent, "Safari"):
		return "Safari"
	case strings.Contains(userAgent, "Firefox"):
		return "Firefox"
	case strings.Contains(userAgent, "MSIE"), strings.Contains(userAgent, "Trident/"):
		return "IE"
	default:
		return "Unknown"
	}
}

// NewBrowserContext fills in the derived fields of a browser context. The
// timezone defaults to the local zone when unset.
func NewBrowserContext(bc domain.BrowserContext) domain.BrowserContext {
	if bc.Browser == "" {
		bc.Browser = BrowserFamily(bc.UserAgent)
	}
	if bc.Timezone == "" {
		bc.Timezone, _ = time.Now().Zone()
	}
	return bc
}
