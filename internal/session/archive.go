package session

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// archiveNamespace compresses a session directory into
// <archiveDir>/<id>.zip and removes the live directory. The zip is
// written fully before the source is deleted, so a partial failure
// leaves the live namespace intact for the next sweep.
func archiveNamespace(srcDir, archiveDir, id string) error {
	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("stat session dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("session path %s is not a directory", srcDir)
	}

	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	zipPath := filepath.Join(archiveDir, id+".zip")
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", zipPath, err)
	}

	zw := zip.NewWriter(out)
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})

	if cerr := zw.Close(); walkErr == nil {
		walkErr = cerr
	}
	if cerr := out.Close(); walkErr == nil {
		walkErr = cerr
	}
	if walkErr != nil {
		os.Remove(zipPath)
		return fmt.Errorf("write archive %s: %w", zipPath, walkErr)
	}

	if err := os.RemoveAll(srcDir); err != nil {
		return fmt.Errorf("remove session dir: %w", err)
	}
	return nil
}
