package spider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpiderInfoRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "info", "618395")

	si := &SpiderInfo{
		GID:            618395,
		Token:          "0439fa3666",
		Pages:          175,
		PreviewPages:   9,
		PreviewPerPage: 20,
		PTokenMap: map[int]string{
			0:  "0af9ab12c5",
			1:  "1bd200aa31",
			19: "93ff0e2e17",
		},
	}
	require.NoError(t, si.Write(path))

	got, err := ReadSpiderInfo(path, 618395, "0439fa3666")
	require.NoError(t, err)
	assert.Equal(t, si, got)
}

func TestSpiderInfoSkipsSentinels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "618395")

	si := &SpiderInfo{
		GID:            618395,
		Token:          "0439fa3666",
		Pages:          30,
		PreviewPages:   3,
		PreviewPerPage: 10,
		PTokenMap: map[int]string{
			0: "0af9ab12c5",
			1: TokenWait,
			2: TokenFailed,
		},
	}
	require.NoError(t, si.Write(path))

	got, err := ReadSpiderInfo(path, 618395, "0439fa3666")
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "0af9ab12c5"}, got.PTokenMap)
}

func TestSpiderInfoRejectsIdentityMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "618395")
	si := &SpiderInfo{
		GID:            618395,
		Token:          "0439fa3666",
		Pages:          10,
		PreviewPages:   1,
		PreviewPerPage: 20,
		PTokenMap:      map[int]string{},
	}
	require.NoError(t, si.Write(path))

	_, err := ReadSpiderInfo(path, 999999, "0439fa3666")
	assert.Error(t, err, "wrong gid must be rejected")

	_, err = ReadSpiderInfo(path, 618395, "deadbeef00")
	assert.Error(t, err, "wrong token must be rejected")
}

func TestSpiderInfoMissingFile(t *testing.T) {
	_, err := ReadSpiderInfo(filepath.Join(t.TempDir(), "nope"), 1, "t")
	assert.True(t, os.IsNotExist(err))
}

func TestSpiderInfoDropsOutOfRangeKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "618395")
	si := &SpiderInfo{
		GID:            618395,
		Token:          "0439fa3666",
		Pages:          10,
		PreviewPages:   1,
		PreviewPerPage: 20,
		PTokenMap: map[int]string{
			5:  "0af9ab12c5",
			10: "93ff0e2e17", // beyond pages
		},
	}
	require.NoError(t, si.Write(path))

	got, err := ReadSpiderInfo(path, 618395, "0439fa3666")
	require.NoError(t, err)
	assert.Equal(t, map[int]string{5: "0af9ab12c5"}, got.PTokenMap)
}

func TestSpiderInfoGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "618395")
	require.NoError(t, os.WriteFile(path, []byte("not a spider info\n"), 0644))

	_, err := ReadSpiderInfo(path, 618395, "0439fa3666")
	assert.Error(t, err)
}
