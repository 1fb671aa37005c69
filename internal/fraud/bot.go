package fraud

import (
	"strings"

	"github.com/mssola/user_agent"
	"github.com/samber/lo"
)

// automationSignatures are user agent fragments of HTTP clients and headless
// browsers that user_agent does not flag as bots on its own.
var automationSignatures = []string{
	"googlebot",
	"bingbot",
	"crawler",
	"spider",
	"curl",
	"wget",
	"python-requests",
	"python-urllib",
	"aiohttp",
	"httpx",
	"go-http-client",
	"okhttp",
	"java/",
	"libwww-perl",
	"scrapy",
	"headless",
	"phantomjs",
	"puppeteer",
	"playwright",
	"selenium",
	"postman",
	"insomnia",
}

// IsBot reports whether userAgent belongs to a crawler or an automated
// client. An empty user agent counts as automated.
func IsBot(userAgent string) bool {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return true
	}

	if user_agent.New(userAgent).Bot() {
		return true
	}

	lower := strings.ToLower(userAgent)
	return lo.ContainsBy(automationSignatures, func(sig string) bool {
		return strings.Contains(lower, sig)
	})
}
