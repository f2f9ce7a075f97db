package spider

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// pToken sentinels. TokenWait marks an in-flight preview fetch and is
// never written to disk; TokenFailed marks an index whose preview
// fetches are exhausted.
const (
	TokenWait   = "wait"
	TokenFailed = "failed"
)

// InfoFilename is the per-gallery metadata file kept in the download
// directory. The cache tier stores the same record under the gid.
const InfoFilename = ".ehviewer"

const infoVersion = 1

// SpiderInfo is the persistent per-gallery metadata: how many pages the
// gallery has, how its preview index is paginated, and the pTokens
// collected so far.
type SpiderInfo struct {
	GID            uint64
	Token          string
	Pages          int
	PreviewPages   int
	PreviewPerPage int
	PTokenMap      map[int]string
}

// ReadSpiderInfo loads a SpiderInfo record, rejecting records whose
// identity disagrees with the expected gid and token. A missing file is
// an error the caller treats as "no local copy".
func ReadSpiderInfo(path string, gid uint64, token string) (*SpiderInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	next := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("spider info truncated")
		}
		return strings.TrimSpace(sc.Text()), nil
	}

	version, err := next()
	if err != nil {
		return nil, err
	}
	if version != "VERSION "+strconv.Itoa(infoVersion) {
		return nil, fmt.Errorf("spider info version mismatch: %q", version)
	}

	si := &SpiderInfo{PTokenMap: make(map[int]string)}
	line, err := next()
	if err != nil {
		return nil, err
	}
	if si.GID, err = strconv.ParseUint(line, 10, 64); err != nil {
		return nil, fmt.Errorf("spider info bad gid: %w", err)
	}
	if si.Token, err = next(); err != nil {
		return nil, err
	}
	if si.GID != gid || si.Token != token {
		return nil, fmt.Errorf("spider info identity mismatch: got %d/%s", si.GID, si.Token)
	}
	for _, field := range []*int{&si.Pages, &si.PreviewPages, &si.PreviewPerPage} {
		line, err = next()
		if err != nil {
			return nil, err
		}
		if *field, err = strconv.Atoi(line); err != nil {
			return nil, fmt.Errorf("spider info bad number: %w", err)
		}
	}
	if si.Pages < 1 || si.PreviewPerPage < 1 {
		return nil, fmt.Errorf("spider info bad page counts: %d/%d", si.Pages, si.PreviewPerPage)
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		index, err := strconv.Atoi(fields[0])
		if err != nil || index < 0 || index >= si.Pages {
			continue
		}
		si.PTokenMap[index] = fields[1]
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return si, nil
}

// Write persists the record to path, creating parent directories as
// needed. The WAIT and FAILED sentinels are transient and skipped.
func (si *SpiderInfo) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "VERSION %d\n", infoVersion)
	fmt.Fprintf(&b, "%d\n%s\n%d\n%d\n%d\n", si.GID, si.Token, si.Pages, si.PreviewPages, si.PreviewPerPage)

	indices := make([]int, 0, len(si.PTokenMap))
	for index := range si.PTokenMap {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	for _, index := range indices {
		token := si.PTokenMap[index]
		if token == TokenWait || token == TokenFailed {
			continue
		}
		fmt.Fprintf(&b, "%d %s\n", index, token)
	}

	return os.WriteFile(path, []byte(b.String()), 0644)
}
