package news

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
)

// Vietstock article bodies live in p.pTitle / p.pHead / p.pBody paragraphs.
// The generic tag-strip path is the fallback for everything else.
var (
	scriptStyleRE = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(?:script|style|noscript)>`)
	brRE          = regexp.MustCompile(`(?is)<br\s*/?>`)
	pCloseRE      = regexp.MustCompile(`(?is)</p\s*>`)
	tagRE         = regexp.MustCompile(`(?is)<[^>]+>`)
	spaceRE       = regexp.MustCompile(`[\t\r ]+`)
	leadSpaceRE   = regexp.MustCompile(`\n\s+`)
	multiNLRE     = regexp.MustCompile(`\n{3,}`)

	siteParagraphREs = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<p[^>]*class="pTitle"[^>]*>(.*?)</p>`),
		regexp.MustCompile(`(?is)<p[^>]*class="pHead"[^>]*>(.*?)</p>`),
		regexp.MustCompile(`(?is)<p[^>]*class="pBody"[^>]*>(.*?)</p>`),
	}

	articleURLRE = regexp.MustCompile(`(?i)https?://(?:www\.)?(?:vietstock\.vn|fili\.vn)/\d{4}/\d{2}/[^\s"']+?\.htm`)
	relURLRE     = regexp.MustCompile(`(?i)/\d{4}/\d{2}/[^\s"']+?\.htm`)
)

// The text cap bounds row size in the warehouse.
const maxTextBytes = 500_000

// StripTags reduces HTML to readable text, preserving paragraph breaks.
func StripTags(htmlStr string) string {
	s := scriptStyleRE.ReplaceAllString(htmlStr, " ")
	s = brRE.ReplaceAllString(s, "\n")
	s = pCloseRE.ReplaceAllString(s, "\n")
	s = tagRE.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = spaceRE.ReplaceAllString(s, " ")
	s = leadSpaceRE.ReplaceAllString(s, "\n")
	s = multiNLRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// ExtractMainText prefers the site-specific paragraph classes; when the
// result is shorter than the minimum word count it falls back to a generic
// strip of the whole document.
func ExtractMainText(htmlStr string) string {
	var paras []string
	for _, re := range siteParagraphREs {
		for _, m := range re.FindAllStringSubmatch(htmlStr, -1) {
			if t := StripTags(m[1]); t != "" {
				paras = append(paras, t)
			}
		}
	}
	// Adjacent duplicate paragraphs show up when a page repeats the lede.
	cleaned := paras[:0]
	for _, p := range paras {
		if len(cleaned) == 0 || cleaned[len(cleaned)-1] != p {
			cleaned = append(cleaned, p)
		}
	}

	text := strings.Join(cleaned, "\n\n")
	if WordCount(text) >= MinWordCount {
		return capText(text)
	}
	return capText(StripTags(htmlStr))
}

// WordCount counts whitespace-separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// ContentSHA256 hex-encodes the SHA-256 of the raw text bytes, the cross-URL
// dedup key.
func ContentSHA256(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ExtractArticleURLs finds article links in listing-page HTML, resolving
// relative links against vietstock.vn.
func ExtractArticleURLs(htmlStr string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(u string) {
		u = NormalizeURL(u)
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	for _, m := range articleURLRE.FindAllString(htmlStr, -1) {
		add(m)
	}
	// Root-relative links, scanned with absolute matches blanked out so a
	// fili.vn path is not re-rooted onto vietstock.vn.
	stripped := articleURLRE.ReplaceAllString(htmlStr, " ")
	for _, m := range relURLRE.FindAllString(stripped, -1) {
		add("https://vietstock.vn" + m)
	}
	return out
}

func capText(text string) string {
	if len(text) <= maxTextBytes {
		return text
	}
	return text[:maxTextBytes]
}
