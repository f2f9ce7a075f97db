package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetailURL(t *testing.T) {
	assert.Equal(t,
		"https://e-hentai.org/g/618395/0439fa3666/",
		DetailURL(DefaultBaseURL, 618395, "0439fa3666", 0))
	assert.Equal(t,
		"https://e-hentai.org/g/618395/0439fa3666/?p=2",
		DetailURL(DefaultBaseURL, 618395, "0439fa3666", 2))
}

func TestPageURL(t *testing.T) {
	assert.Equal(t,
		"https://e-hentai.org/s/0af9ab12c5/618395-1",
		PageURL(DefaultBaseURL, 618395, 0, "0af9ab12c5", ""))
	assert.Equal(t,
		"https://e-hentai.org/s/0af9ab12c5/618395-5?nl=37298-412995",
		PageURL(DefaultBaseURL, 618395, 4, "0af9ab12c5", "37298-412995"))
}

func TestFileExtension(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://hath.example.net/h/ab/sample-004.jpg", "jpg"},
		{"https://hath.example.net/h/ab/sample.webp?token=1", "webp"},
		{"https://hath.example.net/h/ab/noext", ""},
		{"https://hath.example.net/h/ab/weird.verylongext", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileExtension(tt.url), tt.url)
	}
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "Bandwidth limit exceeded (509)", ErrorText(Err509))
	assert.Equal(t, "Unknown error", ErrorText(nil))
}
