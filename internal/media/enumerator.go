package media

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
)

var ErrDirectoryNotFound = errors.New("directory not found")

// ListMediaFiles returns the names of the supported video files directly
// inside dir, in lexical order. Subdirectories and other files are skipped.
func ListMediaFiles(fsys afero.Fs, dir string) ([]string, error) {
	info, err := fsys.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDirectoryNotFound, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDirectoryNotFound, dir)
	}

	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDirectoryNotFound, dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !IsSupportedVideo(entry.Name()) {
			continue
		}
		files = append(files, entry.Name())
	}

	return files, nil
}
