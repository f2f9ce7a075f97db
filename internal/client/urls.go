package client

import (
	"fmt"
	"path"
	"strings"
)

const DefaultBaseURL = "https://e-hentai.org"

// DetailURL builds the gallery detail URL for one preview page.
//
// https://e-hentai.org/g/{gid}/{token}/?p={previewIndex}
func DetailURL(baseURL string, gid uint64, token string, previewIndex int) string {
	u := fmt.Sprintf("%s/g/%d/%s/", strings.TrimSuffix(baseURL, "/"), gid, token)
	if previewIndex > 0 {
		u += fmt.Sprintf("?p=%d", previewIndex)
	}
	return u
}

// PageURL builds the page view URL. The page number in the path is
// 1-based while index is 0-based. skipHathKey, when non-empty, asks
// the server for a different image source.
//
// https://e-hentai.org/s/{pToken}/{gid}-{page}
func PageURL(baseURL string, gid uint64, index int, pToken, skipHathKey string) string {
	u := fmt.Sprintf("%s/s/%s/%d-%d", strings.TrimSuffix(baseURL, "/"), pToken, gid, index+1)
	if skipHathKey != "" {
		u += "?nl=" + skipHathKey
	}
	return u
}

// FileExtension extracts a file extension hint from an image URL,
// without the dot. Query strings are stripped first.
func FileExtension(imageURL string) string {
	if i := strings.IndexAny(imageURL, "?#"); i >= 0 {
		imageURL = imageURL[:i]
	}
	ext := strings.TrimPrefix(path.Ext(imageURL), ".")
	if len(ext) > 5 {
		return ""
	}
	return ext
}
