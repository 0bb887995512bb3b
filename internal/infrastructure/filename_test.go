package infrastructure

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "video.mp4", "video.mp4"},
		{"reserved characters", `a<b>c:d"e/f\g|h?i*j.txt`, "a_b_c_d_e_f_g_h_i_j.txt"},
		{"control characters", "bad\x00name\x1f.bin", "badname.bin"},
		{"leading and trailing dots", "..hidden. ", "hidden"},
		{"empty", "", "download"},
		{"only dots", "...", "download"},
		{"unicode kept", "фильм 2024.mkv", "фильм 2024.mkv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}

func TestSanitizeFilename_CapsLengthKeepingExtension(t *testing.T) {
	long := strings.Repeat("ж", 300) + ".mp4"

	got := SanitizeFilename(long)
	assert.LessOrEqual(t, len(got), 255)
	assert.True(t, strings.HasSuffix(got, ".mp4"))
	assert.True(t, strings.HasPrefix(got, "ж"))
	assert.NotContains(t, got, "�")
}

func TestResolveFilename(t *testing.T) {
	finalURL, _ := url.Parse("https://cdn.example.com/files/final%20name.zip")

	withDisposition := &http.Response{Header: http.Header{}}
	withDisposition.Header.Set("Content-Disposition", `attachment; filename="report.pdf"`)

	redirected := &http.Response{Header: http.Header{}, Request: &http.Request{URL: finalURL}}

	emptyDisposition := &http.Response{Header: http.Header{}}
	emptyDisposition.Header.Set("Content-Disposition", "attachment")

	tests := []struct {
		name     string
		desired  string
		resp     *http.Response
		rawURL   string
		expected string
	}{
		{"desired wins", "mine.bin", withDisposition, "https://a.com/x.zip", "mine.bin"},
		{"content disposition", "", withDisposition, "https://a.com/x.zip", "report.pdf"},
		{"final request URL", "", redirected, "https://a.com/short", "final name.zip"},
		{"disposition without filename", "", emptyDisposition, "https://a.com/dir/file.iso", "file.iso"},
		{"raw URL segment", "", nil, "https://a.com/dir/file.iso?x=1", "file.iso"},
		{"no usable name", "", nil, "https://a.com/", "download"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveFilename(tt.desired, tt.resp, tt.rawURL))
		})
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()

	first := UniquePath(dir, "file.txt")
	assert.Equal(t, filepath.Join(dir, "file.txt"), first)
	require.NoError(t, os.WriteFile(first, []byte("x"), 0644))

	second := UniquePath(dir, "file.txt")
	assert.Equal(t, filepath.Join(dir, "file_1.txt"), second)
	require.NoError(t, os.WriteFile(second, []byte("x"), 0644))

	assert.Equal(t, filepath.Join(dir, "file_2.txt"), UniquePath(dir, "file.txt"))
}
