package client

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detailHTML(pages, previewPages int, previews []PreviewItem) string {
	var cells strings.Builder
	cells.WriteString("<td>&lt;</td>")
	for i := 1; i <= previewPages; i++ {
		fmt.Fprintf(&cells, `<td><a href="?p=%d">%d</a></td>`, i-1, i)
	}
	cells.WriteString("<td>&gt;</td>")

	var thumbs strings.Builder
	for _, p := range previews {
		fmt.Fprintf(&thumbs,
			`<div class="gdtm"><a href="https://e-hentai.org/s/%s/618395-%d"><img alt="%d"/></a></div>`,
			p.PToken, p.Page+1, p.Page+1)
	}

	return fmt.Sprintf(`<html><body>
<p class="gpc">Showing 1 - %d of %d images</p>
<table class="ptt"><tr>%s</tr></table>
<div id="gdt">%s</div>
</body></html>`, len(previews), pages, cells.String(), thumbs.String())
}

func TestParsePages(t *testing.T) {
	html := detailHTML(175, 9, []PreviewItem{{Page: 0, PToken: "0af9ab12c5"}})
	pages, err := ParsePages(html)
	require.NoError(t, err)
	assert.Equal(t, 175, pages)
}

func TestParsePagesMissing(t *testing.T) {
	_, err := ParsePages("<html><body>nothing here</body></html>")
	assert.ErrorIs(t, err, ErrParse)
}

func TestParsePreviewPages(t *testing.T) {
	html := detailHTML(175, 9, []PreviewItem{{Page: 0, PToken: "0af9ab12c5"}})
	previewPages, err := ParsePreviewPages(html)
	require.NoError(t, err)
	assert.Equal(t, 9, previewPages)
}

func TestParsePreviewPagesMissing(t *testing.T) {
	_, err := ParsePreviewPages("<html><body><table class=\"ptt\"></table></body></html>")
	assert.ErrorIs(t, err, ErrParse)
}

func TestParsePreviewSet(t *testing.T) {
	want := []PreviewItem{
		{Page: 0, PToken: "0af9ab12c5"},
		{Page: 1, PToken: "1bd200aa31"},
		{Page: 19, PToken: "93ff0e2e17"},
	}
	html := detailHTML(175, 9, want)

	items, err := ParsePreviewSet(html)
	require.NoError(t, err)
	assert.Equal(t, want, items)
}

func TestParsePreviewSetEmpty(t *testing.T) {
	_, err := ParsePreviewSet("<html><body><div id=\"gdt\"></div></body></html>")
	assert.ErrorIs(t, err, ErrParse)
}

func TestParsePageURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantIndex int
		wantToken string
		wantOK    bool
	}{
		{"normal", "https://e-hentai.org/s/0af9ab12c5/618395-4", 3, "0af9ab12c5", true},
		{"relative", "/s/93ff0e2e17/618395-20", 19, "93ff0e2e17", true},
		{"not a page url", "https://e-hentai.org/g/618395/0439fa3666/", 0, "", false},
		{"zero page", "https://e-hentai.org/s/0af9ab12c5/618395-0", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, token, ok := ParsePageURL(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantIndex, index)
				assert.Equal(t, tt.wantToken, token)
			}
		})
	}
}

func TestParseGalleryPage(t *testing.T) {
	html := `<html><body>
<div id="i3"><a onclick="return load_image(5, '9c3f1a8e01')">
<img id="img" src="https://hath.example.net/h/ab12cd/keystamp/sample-004.jpg" style="height:1000px"/>
</a></div>
<div id="i6"><a href="#" id="loadfail" onclick="return nl('37298-412995')">Click here if the image fails loading</a></div>
</body></html>`

	result, err := ParseGalleryPage(html)
	require.NoError(t, err)
	assert.Equal(t, "https://hath.example.net/h/ab12cd/keystamp/sample-004.jpg", result.ImageURL)
	assert.Equal(t, "37298-412995", result.SkipHathKey)
}

func TestParseGalleryPageNoSkipKey(t *testing.T) {
	html := `<html><body><img id="img" src="https://hath.example.net/x.png"/></body></html>`
	result, err := ParseGalleryPage(html)
	require.NoError(t, err)
	assert.Equal(t, "https://hath.example.net/x.png", result.ImageURL)
	assert.Empty(t, result.SkipHathKey)
}

func TestParseGalleryPageNoImage(t *testing.T) {
	_, err := ParseGalleryPage("<html><body><p>bandwidth exceeded</p></body></html>")
	assert.ErrorIs(t, err, ErrParse)
}
