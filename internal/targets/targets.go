// Package targets holds the per-platform scrape profiles. Everything a
// platform needs is declared here as data plus a session provider; the
// pipeline never contains platform-specific branches.
package targets

import (
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/browser"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/session"
)

// Target couples a platform's immutable pipeline profile with the session
// provider that feeds it.
type Target struct {
	Profile  *pipeline.Profile
	Provider session.Provider
}

// Deps carries the shared infrastructure the target constructors need.
type Deps struct {
	// Browser is required by targets whose tokens come from a headless
	// browser flow (instamart).
	Browser     *browser.Browser
	HTTPTimeout time.Duration
	UserAgent   string
	Logger      *slog.Logger
}

// All builds every supported target, keyed by platform name.
//
// Location hint formats:
//
//	instamart  "storeID,lat,lng"
//	zepto      "storeID" or "storeID,etaMinutes"
//	amazon     "pincode" or "pincode,storeContext"
//	flipkart   "pincode"
//	jiomart    "pincode"
func All(deps Deps) map[string]Target {
	return map[string]Target{
		"instamart": Instamart(deps),
		"zepto":     Zepto(deps),
		"amazon":    Amazon(deps),
		"flipkart":  Flipkart(deps),
		"jiomart":   JioMart(deps),
	}
}

// Names lists the supported platforms.
func Names() []string {
	return []string{"amazon", "flipkart", "instamart", "jiomart", "zepto"}
}

func (d Deps) httpClient() *resty.Client {
	client := resty.New().SetTimeout(d.HTTPTimeout)
	if d.UserAgent != "" {
		client.SetHeader("User-Agent", d.UserAgent)
	}
	return client
}

// hintPart reads one comma-separated segment of a location hint; missing
// segments come back empty.
func hintPart(hint string, idx int) string {
	parts := strings.Split(hint, ",")
	if idx >= len(parts) {
		return ""
	}
	return strings.TrimSpace(parts[idx])
}

func mergeMaps(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
