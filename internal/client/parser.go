package client

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PreviewItem is one (page, pToken) pair scraped from a preview page.
type PreviewItem struct {
	Page   int
	PToken string
}

// PageResult is the outcome of parsing a page view: the image to
// download and an optional one-shot bypass key for retries.
type PageResult struct {
	ImageURL    string
	SkipHathKey string
}

var (
	pageURLRe     = regexp.MustCompile(`/s/([0-9a-f]+)/(\d+)-(\d+)`)
	skipHathKeyRe = regexp.MustCompile(`nl\('([^')]+)'\)`)
	digitsRe      = regexp.MustCompile(`^\d+$`)
)

// ParsePageURL extracts the page index and pToken from a page view URL.
// The returned index is 0-based.
func ParsePageURL(pageURL string) (index int, pToken string, ok bool) {
	m := pageURLRe.FindStringSubmatch(pageURL)
	if m == nil {
		return 0, "", false
	}
	page, err := strconv.Atoi(m[3])
	if err != nil || page < 1 {
		return 0, "", false
	}
	return page - 1, m[1], true
}

// ParsePages extracts the total image count from a gallery detail page.
func ParsePages(html string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrParse, err)
	}
	text := doc.Find("p.gpc").First().Text()
	// "Showing 1 - 20 of 175 images"
	fields := strings.Fields(text)
	for i := 0; i < len(fields)-1; i++ {
		if fields[i] == "of" && digitsRe.MatchString(fields[i+1]) {
			return strconv.Atoi(fields[i+1])
		}
	}
	return 0, fmt.Errorf("%w: no image count in detail page", ErrParse)
}

// ParsePreviewPages extracts the number of preview index pages from the
// pagination table of a gallery detail page.
func ParsePreviewPages(html string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrParse, err)
	}
	cells := doc.Find("table.ptt td")
	// first and last cells are the < and > arrows
	if cells.Length() < 3 {
		return 0, fmt.Errorf("%w: no pagination table in detail page", ErrParse)
	}
	last := strings.TrimSpace(cells.Eq(cells.Length() - 2).Text())
	n, err := strconv.Atoi(last)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: bad preview page count %q", ErrParse, last)
	}
	return n, nil
}

// ParsePreviewSet extracts every (page, pToken) pair linked from a
// gallery detail page's preview thumbnails.
func ParsePreviewSet(html string) ([]PreviewItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var items []PreviewItem
	doc.Find("div.gdtm a, div.gdtl a").Each(func(i int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists {
			return
		}
		index, pToken, ok := ParsePageURL(href)
		if !ok {
			return
		}
		items = append(items, PreviewItem{Page: index, PToken: pToken})
	})
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no previews in detail page", ErrParse)
	}
	return items, nil
}

// ParseGalleryPage extracts the image URL and the optional skipHathKey
// from a page view.
func ParseGalleryPage(html string) (*PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	imageURL, exists := doc.Find("img#img").First().Attr("src")
	if !exists || imageURL == "" {
		return nil, fmt.Errorf("%w: no image in page view", ErrParse)
	}

	result := &PageResult{ImageURL: imageURL}
	if m := skipHathKeyRe.FindStringSubmatch(html); m != nil {
		result.SkipHathKey = m[1]
	}
	return result, nil
}
