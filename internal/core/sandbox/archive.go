package sandbox

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
)

// ArchiveView is a navigable, in-memory view of a tar archive extracted
// from a container's filesystem.
type ArchiveView struct {
	files map[string][]byte
	dirs  map[string]bool
}

// NewArchiveView reads the whole tar stream into memory. Container paths
// are small (log files, config files), so buffering is fine.
func NewArchiveView(r io.Reader) (*ArchiveView, error) {
	v := &ArchiveView{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read archive: %w", err)
		}
		name := normalize(hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			v.dirs[name] = true
		case tar.TypeReg:
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("failed to read archive entry %q: %w", name, err)
			}
			v.files[name] = data
		}
	}
	return v, nil
}

func normalize(p string) string {
	return strings.Trim(path.Clean("/"+p), "/")
}

// ReadFile returns the contents of the file at p.
func (v *ArchiveView) ReadFile(p string) ([]byte, error) {
	name := normalize(p)
	if v.dirs[name] {
		return nil, fmt.Errorf("%q is not a file", p)
	}
	data, ok := v.files[name]
	if !ok {
		return nil, fmt.Errorf("archive entry %q: %w", p, os.ErrNotExist)
	}
	return data, nil
}

// List returns the names of files and directories directly inside the
// directory at p.
func (v *ArchiveView) List(p string) (files, dirs []string, err error) {
	name := normalize(p)
	if name != "" && !v.dirs[name] {
		if _, ok := v.files[name]; ok {
			return nil, nil, fmt.Errorf("%q is not a directory", p)
		}
		return nil, nil, fmt.Errorf("archive entry %q: %w", p, os.ErrNotExist)
	}

	prefix := name
	if prefix != "" {
		prefix += "/"
	}
	for f := range v.files {
		if child, ok := directChild(f, prefix); ok {
			files = append(files, child)
		}
	}
	for d := range v.dirs {
		if child, ok := directChild(d, prefix); ok {
			dirs = append(dirs, child)
		}
	}
	sort.Strings(files)
	sort.Strings(dirs)
	return files, dirs, nil
}

func directChild(entry, prefix string) (string, bool) {
	if !strings.HasPrefix(entry, prefix) || entry == strings.TrimSuffix(prefix, "/") {
		return "", false
	}
	rest := entry[len(prefix):]
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
