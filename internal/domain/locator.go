package domain

import (
	"strings"
)

// LocatorKind identifies which retrieval strategy a locator is routed to
type LocatorKind string

const (
	LocatorInvalid LocatorKind = "invalid"
	LocatorHTTP    LocatorKind = "http"    // Direct stream fetch
	LocatorMedia   LocatorKind = "media"   // Platform-hosted video, media extractor
	LocatorMagnet  LocatorKind = "magnet"  // Magnet URI, swarm
	LocatorTorrent LocatorKind = "torrent" // .torrent descriptor (remote URL or local path), swarm
)

// Locator is a classified input reference
type Locator struct {
	Kind LocatorKind `json:"kind"`
	Raw  string      `json:"raw"`
	// URL is the normalized form handed to strategies.
	URL string `json:"url"`
}

// IsValid reports whether the locator can be acquired
func (l Locator) IsValid() bool {
	return l.Kind != LocatorInvalid && l.Kind != ""
}

// IsSwarm reports whether the locator is served by the swarm fetcher
func (l Locator) IsSwarm() bool {
	return l.Kind == LocatorMagnet || l.Kind == LocatorTorrent
}

// IsRemote reports whether a torrent descriptor must be fetched over the network first
func (l Locator) IsRemote() bool {
	lower := strings.ToLower(l.URL)
	for _, prefix := range []string{"http://", "https://", "ftp://", "ftps://"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

var urlPrefixes = []string{"http://", "https://", "ftp://", "ftps://", "www."}

// DefaultMediaDomains returns the media-hosting allow-list used when none is configured
func DefaultMediaDomains() []string {
	return []string{
		"youtube.com",
		"youtu.be",
		"instagram.com",
		"facebook.com",
		"twitter.com",
		"x.com",
		"tiktok.com",
		"vt.tiktok.com",
		"vm.tiktok.com",
		"vimeo.com",
		"dailymotion.com",
		"twitch.tv",
		"reddit.com",
		"streamable.com",
		"imgur.com",
	}
}

// Classifier turns raw input into a Locator. It holds no mutable state.
type Classifier struct {
	mediaDomains []string
}

// NewClassifier creates a classifier with the given media allow-list
func NewClassifier(mediaDomains []string) *Classifier {
	if len(mediaDomains) == 0 {
		mediaDomains = DefaultMediaDomains()
	}

	domains := make([]string, 0, len(mediaDomains))
	for _, d := range mediaDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}

	return &Classifier{mediaDomains: domains}
}

// Classify classifies raw input. Rules are applied in priority order: magnet,
// .torrent suffix, then for URL-prefixed input the media allow-list before plain http.
// Anything else is invalid.
func (c *Classifier) Classify(raw string) Locator {
	text := strings.TrimSpace(raw)
	lower := strings.ToLower(text)
	invalid := Locator{Kind: LocatorInvalid, Raw: raw}

	if text == "" || strings.ContainsAny(text, " \t\r\n") {
		return invalid
	}

	if strings.HasPrefix(lower, "magnet:?") {
		return Locator{Kind: LocatorMagnet, Raw: raw, URL: text}
	}

	if strings.HasSuffix(stripQuery(lower), ".torrent") {
		return Locator{Kind: LocatorTorrent, Raw: raw, URL: normalizeURL(text)}
	}

	if !hasURLPrefix(lower) {
		return invalid
	}

	// Allow-list entries match anywhere in the locator.
	for _, d := range c.mediaDomains {
		if strings.Contains(lower, d) {
			return Locator{Kind: LocatorMedia, Raw: raw, URL: normalizeURL(text)}
		}
	}

	return Locator{Kind: LocatorHTTP, Raw: raw, URL: normalizeURL(text)}
}

func hasURLPrefix(lower string) bool {
	for _, prefix := range urlPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}

func normalizeURL(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "www.") {
		return "https://" + s
	}
	return s
}
