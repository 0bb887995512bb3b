package infrastructure

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	defaultDownloadName = "download"
	maxFilenameLength   = 255
)

// SanitizeFilename makes a name safe for the local filesystem: reserved characters
// become underscores, control characters are dropped, leading and trailing dots and
// spaces are trimmed and the result is capped at 255 bytes keeping the extension.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteRune('_')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}

	clean := strings.Trim(b.String(), ". ")
	if clean == "" {
		return defaultDownloadName
	}

	if len(clean) > maxFilenameLength {
		ext := filepath.Ext(clean)
		if len(ext) >= maxFilenameLength/2 {
			ext = ""
		}
		clean = truncateUTF8(strings.TrimSuffix(clean, ext), maxFilenameLength-len(ext)) + ext
	}

	return clean
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ResolveFilename picks the output name for a direct fetch: the desired name, then the
// content-disposition filename, then the last URL path segment, then a placeholder.
func ResolveFilename(desired string, resp *http.Response, rawURL string) string {
	if desired = strings.TrimSpace(desired); desired != "" {
		return SanitizeFilename(desired)
	}

	if resp != nil {
		if name := dispositionFilename(resp.Header.Get("Content-Disposition")); name != "" {
			return SanitizeFilename(name)
		}
		if resp.Request != nil && resp.Request.URL != nil {
			if name := lastSegment(resp.Request.URL); name != "" {
				return SanitizeFilename(name)
			}
		}
	}

	if u, err := url.Parse(rawURL); err == nil {
		if name := lastSegment(u); name != "" {
			return SanitizeFilename(name)
		}
	}

	return defaultDownloadName
}

func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil || params["filename"] == "" {
		return ""
	}
	return filepath.Base(params["filename"])
}

func lastSegment(u *url.URL) string {
	p := u.Path
	if unescaped, err := url.PathUnescape(u.EscapedPath()); err == nil {
		p = unescaped
	}
	name := path.Base(p)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// UniquePath returns dir/name, or dir/name with a numeric suffix when it already exists.
func UniquePath(dir, name string) string {
	candidate := filepath.Join(dir, name)
	if _, err := os.Lstat(candidate); os.IsNotExist(err) {
		return candidate
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
