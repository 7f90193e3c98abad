package stevedore

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Copying the source tree over SSH using TAR:
// local tar.gz archive -> putFile -> tar -C "<target>" -xzf "<archive>"

// DefaultExcludes lists entries never shipped to a host: VCS metadata,
// dependency caches, environment files and logs. Patterns are matched
// against every path segment.
var DefaultExcludes = []string{".git", ".svn", ".hg", "node_modules", "__pycache__", ".env", "*.log"}

// remoteUntarCommand returns the command run on the remote host to
// unpack the uploaded archive into dir, overwriting existing entries.
func remoteUntarCommand(archive, dir string) string {
	return fmt.Sprintf("tar -C \"%s\" -xzf \"%s\"", dir, archive)
}

func remoteMkdirCommand(dir string) string {
	return fmt.Sprintf("mkdir -p \"%s\"", dir)
}

func remoteRemoveCommand(path string) string {
	return fmt.Sprintf("rm -f \"%s\"", path)
}

// archiveTree packs the tree rooted at src into a tar.gz file at dst.
// Only directories and regular files are shipped; entries matching
// excludes are left out altogether.
func archiveTree(src, dst string, excludes []string) error {
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "create archive")
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if excluded(rel, excludes) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !d.IsDir() && !info.Mode().IsRegular() {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return errors.Wrap(err, "pack source tree")
	}

	if err := tw.Close(); err != nil {
		return errors.Wrap(err, "close tar stream")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "close gzip stream")
	}
	return nil
}

// excluded reports whether any path segment of rel matches one of the
// exclusion patterns.
func excluded(rel string, patterns []string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, pattern := range patterns {
			if ok, _ := filepath.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}
