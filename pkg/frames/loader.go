package frames

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileLoader reads frames from local files, picking the format from the
// file extension.
type FileLoader struct{}

func IsSupported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".fits", ".fit", ".fts", ".tif", ".tiff":
		return true
	}
	return false
}

func (FileLoader) LoadHeader(ctx context.Context, filename string) (Header, error) {
	if err := ctx.Err(); err != nil {
		return Header{}, err
	}
	switch {
	case isTIFF(filename):
		return LoadTIFFHeader(filename)
	case IsSupported(filename):
		return LoadFITSHeader(filename)
	}
	return Header{}, fmt.Errorf("'%s': unsupported file type", filename)
}

func (FileLoader) LoadFrame(ctx context.Context, filename string) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	switch {
	case isTIFF(filename):
		return LoadTIFF(filename)
	case IsSupported(filename):
		return LoadFITS(filename)
	}
	return Frame{}, fmt.Errorf("'%s': unsupported file type", filename)
}

// ExpandPaths turns files and dirs into a list of image files. Dirs are
// recursed into, and only supported image files are kept from them;
// files named explicitly are kept regardless, so the caller gets to see
// the failure. Entries within a dir come back in name order.
func ExpandPaths(args ...string) ([]string, error) {
	out := []string{}

	for _, arg := range args {
		item, err := os.Stat(arg)

		switch {

		case err != nil:
			return nil, fmt.Errorf("load %s: %v", arg, err)

		case item.IsDir():
			// Is a dir, recurse into contents
			contents, err := os.ReadDir(arg)
			if err != nil {
				return nil, fmt.Errorf("readdir %s: %v", arg, err)
			}
			names := []string{}
			for _, content := range contents {
				if content.IsDir() || IsSupported(content.Name()) {
					names = append(names, filepath.Join(arg, content.Name()))
				}
			}
			sort.Strings(names)
			sub, err := ExpandPaths(names...)
			if err != nil {
				return nil, fmt.Errorf("load %s: %v", arg, err)
			}
			out = append(out, sub...)

		default:
			out = append(out, arg)
		}
	}

	return out, nil
}
