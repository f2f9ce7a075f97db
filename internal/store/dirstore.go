package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// DirStore keeps page files in plain directories: a download directory
// when the gallery is being downloaded, a cache directory otherwise.
// Page files are named by 1-based page number, e.g. 00000001.jpg.
type DirStore struct {
	mu          sync.Mutex
	downloadDir string
	cacheDir    string
	mode        Mode
}

// NewDirStore creates a store over the two directory tiers. Either
// directory may be empty; pages then only live in the other tier.
func NewDirStore(downloadDir, cacheDir string) *DirStore {
	return &DirStore{
		downloadDir: downloadDir,
		cacheDir:    cacheDir,
		mode:        ModeRead,
	}
}

func (d *DirStore) SetMode(mode Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = mode
}

func (d *DirStore) DownloadDir() string {
	return d.downloadDir
}

// target returns the directory new pages are written to under the
// current mode.
func (d *DirStore) target() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode == ModeDownload && d.downloadDir != "" {
		return d.downloadDir
	}
	if d.cacheDir != "" {
		return d.cacheDir
	}
	return d.downloadDir
}

func pageGlob(index int) string {
	return fmt.Sprintf("%08d.*", index+1)
}

func pageFilename(index int, ext string) string {
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("%08d.%s", index+1, ext)
}

// find returns the page file for index in either tier, download dir
// first, or "" when absent.
func (d *DirStore) find(index int) string {
	for _, dir := range []string{d.downloadDir, d.cacheDir} {
		if dir == "" {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(dir, pageGlob(index)))
		if err == nil && len(matches) > 0 {
			return matches[0]
		}
	}
	return ""
}

func (d *DirStore) Contains(index int) bool {
	return d.find(index) != ""
}

func (d *DirStore) OpenOutputPipe(index int, ext string) OutputPipe {
	dir := d.target()
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil
	}
	return &fileOutputPipe{
		finalPath: filepath.Join(dir, pageFilename(index, ext)),
		tmpPath:   filepath.Join(dir, ".tmp-"+uuid.New().String()),
	}
}

func (d *DirStore) OpenInputPipe(index int) InputPipe {
	path := d.find(index)
	if path == "" {
		return nil
	}
	return &fileInputPipe{path: path}
}

func (d *DirStore) Remove(index int) bool {
	removed := false
	for _, dir := range []string{d.downloadDir, d.cacheDir} {
		if dir == "" {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(dir, pageGlob(index)))
		if err != nil {
			continue
		}
		for _, m := range matches {
			if os.Remove(m) == nil {
				removed = true
			}
		}
	}
	return removed
}

// fileOutputPipe writes through a temp file renamed into place on
// Close, so Contains does not see a page while it is being written.
// Close renames whatever was written, including the partial output of
// an aborted write; removing it is up to the caller.
type fileOutputPipe struct {
	finalPath string
	tmpPath   string
	file      *os.File
}

func (p *fileOutputPipe) Obtain()  {}
func (p *fileOutputPipe) Release() {}

func (p *fileOutputPipe) Open() (io.Writer, error) {
	if p.file != nil {
		return nil, ErrAlreadyOpen
	}
	f, err := os.Create(p.tmpPath)
	if err != nil {
		return nil, err
	}
	p.file = f
	return f, nil
}

func (p *fileOutputPipe) Close() {
	if p.file == nil {
		return
	}
	p.file.Close()
	p.file = nil
	if err := os.Rename(p.tmpPath, p.finalPath); err != nil {
		os.Remove(p.tmpPath)
	}
}

type fileInputPipe struct {
	path string
	file *os.File
}

func (p *fileInputPipe) Obtain()  {}
func (p *fileInputPipe) Release() {}

func (p *fileInputPipe) Open() (io.Reader, error) {
	if p.file != nil {
		return nil, ErrAlreadyOpen
	}
	f, err := os.Open(p.path)
	if err != nil {
		return nil, err
	}
	p.file = f
	return f, nil
}

func (p *fileInputPipe) Close() {
	if p.file != nil {
		p.file.Close()
		p.file = nil
	}
}
