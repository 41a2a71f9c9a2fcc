package ip

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// archiveEntry maps a path on disk to its name inside a tarball.
type archiveEntry struct {
	src     string
	arcname string
}

// CreateArchive writes a gzip tarball of ip to dest. When the HDL sources live
// at the IP root the whole root is archived; otherwise only the descriptor, the
// sources and the optional docs, examples and scripts directories are.
func CreateArchive(ip *IP, dest string) error {
	var entries []archiveEntry
	if filepath.Clean(ip.SrcPath()) == filepath.Clean(ip.RootPath()) {
		entries = append(entries, archiveEntry{src: ip.RootPath(), arcname: "."})
	} else {
		entries = append(entries,
			archiveEntry{src: ip.FilePath(), arcname: filepath.Base(ip.FilePath())},
			archiveEntry{src: ip.SrcPath(), arcname: filepath.Base(ip.SrcPath())},
		)
		entries = append(entries, extraEntries(ip)...)
	}
	return writeArchive(dest, entries)
}

// createEncryptedArchive writes a tarball holding one encrypted source tree per
// simulator, named "<hdl_src_path>.<simulator>".
func createEncryptedArchive(ip *IP, dest string, encrypted map[string]string) error {
	if filepath.Clean(ip.SrcPath()) == filepath.Clean(ip.RootPath()) {
		return fmt.Errorf("cannot encrypt IP '%s': its source root is also the IP root", ip)
	}
	entries := make([]archiveEntry, 0, len(encrypted)+4)
	for _, sim := range ip.Descriptor.IP.Encrypted {
		dir, ok := encrypted[sim]
		if !ok {
			return fmt.Errorf("no encrypted sources for simulator '%s'", sim)
		}
		entries = append(entries, archiveEntry{src: dir, arcname: ip.Descriptor.Structure.HDLSrcPath + "." + sim})
	}
	entries = append(entries, archiveEntry{src: ip.FilePath(), arcname: filepath.Base(ip.FilePath())})
	entries = append(entries, extraEntries(ip)...)
	return writeArchive(dest, entries)
}

func extraEntries(ip *IP) []archiveEntry {
	var entries []archiveEntry
	if ip.HasDocs() {
		entries = append(entries, archiveEntry{src: ip.DocsPath(), arcname: filepath.Base(ip.DocsPath())})
	}
	if ip.HasExamples() {
		entries = append(entries, archiveEntry{src: ip.ExamplesPath(), arcname: filepath.Base(ip.ExamplesPath())})
	}
	if ip.HasScripts() {
		entries = append(entries, archiveEntry{src: ip.ScriptsPath(), arcname: filepath.Base(ip.ScriptsPath())})
	}
	return entries
}

func writeArchive(dest string, entries []archiveEntry) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	zw := gzip.NewWriter(f)
	tw := tar.NewWriter(zw)
	for _, e := range entries {
		if err := addToArchive(tw, e.src, e.arcname); err != nil {
			return fmt.Errorf("failed to add %s to %s: %w", e.src, dest, err)
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return zw.Close()
}

func addToArchive(tw *tar.Writer, src, arcname string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(filepath.Join(arcname, rel))
		if name == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = name
		if info.IsDir() {
			header.Name += "/"
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		// Non-regular files only carry a header.
		if !info.Mode().IsRegular() {
			return nil
		}
		in, err := os.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(tw, in)
		return err
	})
}

// ExtractArchive extracts a gzip tarball into dest. Entries escaping dest are rejected.
func ExtractArchive(data []byte, dest string) error {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decompress archive: %w", err)
	}
	defer zr.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", root, err)
	}

	tr := tar.NewReader(zr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		target := filepath.Join(root, filepath.FromSlash(header.Name))
		if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
			return fmt.Errorf("archive entry %q escapes %s", header.Name, dest)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := writeFile(target, tr, os.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		}
	}
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if perm == 0 {
		perm = 0644
	}
	w, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
