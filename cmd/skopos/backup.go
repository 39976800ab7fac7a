package main

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/mtzanidakis/skopos/internal/config"
)

// Archive entries are prefixed with the section they belong to: "store"
// holds the sqlite database files, "nats" the stream data directory.
var archiveSections = map[string]bool{
	"store": true,
	"nats":  true,
}

// runBackup archives the configured data files. The sqlite file is copied
// as is, so run it while the gateway is stopped.
func runBackup(args []string) error {
	var outputPath string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			outputPath = args[i]
		}
	}

	if outputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: skopos backup -f <output.tar.zst>\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return writeArchive(cfg, outputPath)
}

func writeArchive(cfg *config.Config, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	count := 0

	// Database file plus WAL sidecars if present
	for _, p := range []string{cfg.Store.Path, cfg.Store.Path + "-wal", cfg.Store.Path + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if err := addFile(tw, path.Join("store", filepath.Base(p)), p, info); err != nil {
			return fmt.Errorf("archive %s: %w", p, err)
		}
		count++
	}

	// Stream data directory
	n, err := addTree(tw, "nats", cfg.NATS.DataDir)
	if err != nil {
		return fmt.Errorf("archive %s: %w", cfg.NATS.DataDir, err)
	}
	count += n

	if count == 0 {
		slog.Warn("no data files found, creating empty archive")
	}

	// Close everything explicitly to catch write errors
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	info, _ := os.Stat(outputPath)
	size := int64(0)
	if info != nil {
		size = info.Size()
	}

	fmt.Printf("Backup complete: %d files, %s\n", count, formatSize(size))
	return nil
}

func addFile(tw *tar.Writer, name, srcPath string, info fs.FileInfo) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(tw, src)
	return err
}

// addTree archives every file under root with the section prefix and
// returns the file count. A missing root is skipped, not an error.
func addTree(tw *tar.Writer, section, root string) (int, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		slog.Warn("data directory missing, skipping", "path", root)
		return 0, nil
	}

	count := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		name := path.Join(section, filepath.ToSlash(rel))
		if d.IsDir() {
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = name + "/"
			return tw.WriteHeader(hdr)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if err := addFile(tw, name, p, info); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func runRestore(args []string) error {
	var inputPath string
	overwrite := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			inputPath = args[i]
		case "-overwrite":
			overwrite = true
		}
	}

	if inputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: skopos restore -f <backup.tar.zst> [-overwrite]\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return restoreArchive(cfg, inputPath, overwrite)
}

func restoreArchive(cfg *config.Config, inputPath string, overwrite bool) error {
	// Pre-scan: collect sections present in the archive
	sections, err := scanArchiveSections(inputPath)
	if err != nil {
		return fmt.Errorf("scan archive: %w", err)
	}

	if len(sections) == 0 {
		fmt.Println("Archive contains no data files.")
		return nil
	}

	// Refuse to clobber existing data unless asked to
	if !overwrite {
		for _, section := range sections {
			if target, exists := sectionConflict(cfg, section); exists {
				return fmt.Errorf("%s already exists, add -overwrite to replace files", target)
			}
		}
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)

	restored := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		section, rel := splitArchivePath(hdr.Name)
		if section == "" {
			continue
		}

		root := sectionRoot(cfg, section)
		rel = path.Clean(rel)
		if rel == "." {
			if err := os.MkdirAll(root, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", root, err)
			}
			continue
		}
		// Entries must stay inside their section directory
		if !filepath.IsLocal(rel) {
			slog.Warn("skipping unsafe archive entry", "name", hdr.Name)
			continue
		}

		target := filepath.Join(root, filepath.FromSlash(rel))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("write %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("close %s: %w", target, err)
			}
			restored++
		}
	}

	fmt.Printf("Restore complete: %d files\n", restored)
	return nil
}

// sectionRoot maps an archive section to its on-disk location. The store
// section restores next to the configured database path.
func sectionRoot(cfg *config.Config, section string) string {
	if section == "store" {
		return filepath.Dir(cfg.Store.Path)
	}
	return cfg.NATS.DataDir
}

// sectionConflict reports whether restoring a section would touch data
// that is already there.
func sectionConflict(cfg *config.Config, section string) (string, bool) {
	if section == "store" {
		_, err := os.Stat(cfg.Store.Path)
		return cfg.Store.Path, err == nil
	}
	entries, err := os.ReadDir(cfg.NATS.DataDir)
	return cfg.NATS.DataDir, err == nil && len(entries) > 0
}

// scanArchiveSections reads tar headers to collect unique sections without
// extracting file data.
func scanArchiveSections(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)

	seen := make(map[string]bool)
	var names []string

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		section, _ := splitArchivePath(hdr.Name)
		if section != "" && !seen[section] {
			seen[section] = true
			names = append(names, section)
		}
	}

	return names, nil
}

// splitArchivePath splits "store/skopos.db" into ("store", "skopos.db").
// Returns an empty section for paths outside the known sections.
func splitArchivePath(name string) (section, relPath string) {
	name = strings.TrimLeft(name, "./")
	if name == "" {
		return "", ""
	}

	idx := strings.IndexByte(name, '/')
	if idx < 0 {
		if archiveSections[name] {
			return name, "./"
		}
		return "", ""
	}

	section = name[:idx]
	relPath = name[idx+1:]
	if relPath == "" {
		relPath = "./"
	}

	if !archiveSections[section] {
		return "", ""
	}

	return section, relPath
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
