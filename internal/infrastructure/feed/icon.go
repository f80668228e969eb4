package feed

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxPageBytes bounds how much of a site's home page is read when looking for icons.
const maxPageBytes = 512 << 10

// iconFor returns the feed's own image if it has one, otherwise the icon
// advertised by the site, otherwise the conventional /favicon.ico.
func (f *Fetcher) iconFor(ctx context.Context, parsed *gofeed.Feed, feedURL string) string {
	if parsed.Image != nil && parsed.Image.URL != "" {
		return parsed.Image.URL
	}
	if !f.discover {
		return ""
	}
	site := parsed.Link
	if site == "" {
		site = feedURL
	}
	base, err := url.Parse(site)
	if err != nil || base.Host == "" {
		return ""
	}
	origin := base.Scheme + "://" + base.Host

	f.mu.Lock()
	cached, ok := f.icons[origin]
	f.mu.Unlock()
	if ok {
		return cached
	}

	icon := f.discoverIcon(ctx, base)
	if icon == "" {
		icon = origin + "/favicon.ico"
	}
	f.mu.Lock()
	f.icons[origin] = icon
	f.mu.Unlock()
	return icon
}

func (f *Fetcher) discoverIcon(ctx context.Context, page *url.URL) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.String(), nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Accept", "text/html")
	resp, err := f.client.Do(req)
	if err != nil {
		f.log.WithError(err).WithField("site", page.String()).Debug("icon discovery failed")
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return ""
	}
	href := findIconHref(doc)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return page.ResolveReference(ref).String()
}

// findIconHref returns the href of the first <link rel="icon"> style element.
func findIconHref(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Link {
		var rel, href string
		for _, attr := range n.Attr {
			switch strings.ToLower(attr.Key) {
			case "rel":
				rel = strings.ToLower(attr.Val)
			case "href":
				href = strings.TrimSpace(attr.Val)
			}
		}
		if href != "" && isIconRel(rel) {
			return href
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if href := findIconHref(child); href != "" {
			return href
		}
	}
	return ""
}

func isIconRel(rel string) bool {
	for _, token := range strings.Fields(rel) {
		if token == "icon" || token == "apple-touch-icon" {
			return true
		}
	}
	return false
}
