// Package links finds product image URLs in model output.
package links

import (
	"html"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
	".gif":  {},
}

var (
	bareURL       = regexp.MustCompile(`https?://[^\s<>"'()\[\]{}|\\^` + "`" + `]+`)
	markdownImage = regexp.MustCompile(`!\[([^\]]*)\]\(\s*<?([^)\s>]+)>?(?:\s+"[^"]*")?\s*\)`)
	markdownLink  = regexp.MustCompile(`\[([^\]]*)\]\(\s*<?([^)\s>]+)>?(?:\s+"[^"]*")?\s*\)`)
	htmlImage     = regexp.MustCompile(`(?i)<img\b[^>]*>`)
	htmlAnchor    = regexp.MustCompile(`(?is)<a\b[^>]*>(.*?)</a>`)
	blankLines    = regexp.MustCompile(`\n{3,}`)
	emptyBullet   = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+]|\d+[.)])[ \t]*$\n?`)
)

// Extractor collects usable image URLs. An URL is usable when its path has an image
// extension or its host is one of the configured image hosts.
type Extractor struct {
	hosts map[string]struct{}
}

// NewExtractor creates an extractor that also accepts URLs from imageHosts
// (subdomains included).
func NewExtractor(imageHosts []string) *Extractor {
	hosts := make(map[string]struct{}, len(imageHosts))
	for _, h := range imageHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts[h] = struct{}{}
		}
	}
	return &Extractor{hosts: hosts}
}

// Extract returns the usable image URLs in text in order of appearance, without
// duplicates. It understands markdown images and links, HTML img/a tags, and bare URLs.
func (e *Extractor) Extract(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(raw string) {
		u := cleanURL(raw)
		if _, dup := seen[u]; dup || !e.Usable(u) {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}

	for _, m := range bareURL.FindAllString(text, -1) {
		add(m)
	}
	if strings.Contains(text, "<") {
		for _, u := range htmlURLs(text) {
			add(u)
		}
	}
	return out
}

// htmlURLs returns img src and a href values from HTML fragments in text. Attribute
// values come back entity-decoded, which the bare URL scan cannot do.
func htmlURLs(text string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("img[src], a[href]").Each(func(_ int, sel *goquery.Selection) {
		attr := "href"
		if goquery.NodeName(sel) == "img" {
			attr = "src"
		}
		if v, ok := sel.Attr(attr); ok {
			out = append(out, strings.TrimSpace(v))
		}
	})
	return out
}

// Usable reports whether raw is an http(s) URL that points at an image.
func (e *Extractor) Usable(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	if _, ok := imageExtensions[strings.ToLower(path.Ext(u.Path))]; ok {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for h := range e.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// StripURLs removes usable image URLs from text so it reads well next to the images:
// markdown and HTML images are dropped, image links keep their label, and bare image
// URLs are removed.
func (e *Extractor) StripURLs(text string) string {
	text = markdownImage.ReplaceAllStringFunc(text, func(m string) string {
		if e.Usable(cleanURL(markdownImage.FindStringSubmatch(m)[2])) {
			return ""
		}
		return m
	})
	text = markdownLink.ReplaceAllStringFunc(text, func(m string) string {
		sub := markdownLink.FindStringSubmatch(m)
		if e.Usable(cleanURL(sub[2])) {
			return sub[1]
		}
		return m
	})
	text = htmlImage.ReplaceAllStringFunc(text, func(m string) string {
		for _, u := range htmlURLs(m) {
			if e.Usable(u) {
				return ""
			}
		}
		return m
	})
	text = htmlAnchor.ReplaceAllStringFunc(text, func(m string) string {
		for _, u := range htmlURLs(m) {
			if e.Usable(u) {
				return htmlAnchor.FindStringSubmatch(m)[1]
			}
		}
		return m
	})
	text = bareURL.ReplaceAllStringFunc(text, func(m string) string {
		u := cleanURL(m)
		if !e.Usable(u) {
			return m
		}
		return strings.TrimPrefix(m, u)
	})

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	text = strings.Join(lines, "\n")
	text = emptyBullet.ReplaceAllString(text, "")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// cleanURL decodes HTML entities and trims punctuation that commonly trails an URL
// in prose.
func cleanURL(raw string) string {
	return strings.TrimRight(html.UnescapeString(strings.TrimSpace(raw)), ".,;:!?*_~")
}
