package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths is the single source of truth for the on-disk data layout.
//
//	<data dir>/
//	  ├── output/          merged series (CSV/XLSX, one file per keyword)
//	  ├── raw/             per-window exports for offline re-reconciliation
//	  ├── logs/            application logs
//	  └── credentials.dat  sealed service credentials
type Paths struct {
	DataDir         string
	OutputDir       string
	RawDir          string
	LogsDir         string
	CredentialsFile string
}

// dataDirEnv overrides the data root; default is the working directory.
const dataDirEnv = "TRENDS_DATA_DIR"

// GetPaths resolves the data layout. The root comes from TRENDS_DATA_DIR
// when set, otherwise the current working directory.
func GetPaths() (*Paths, error) {
	root := os.Getenv(dataDirEnv)
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("paths: resolve working directory: %w", err)
		}
		root = wd
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("paths: resolve data dir %s: %w", root, err)
	}

	return &Paths{
		DataDir:         abs,
		OutputDir:       filepath.Join(abs, "output"),
		RawDir:          filepath.Join(abs, "raw"),
		LogsDir:         filepath.Join(abs, "logs"),
		CredentialsFile: filepath.Join(abs, "credentials.dat"),
	}, nil
}

// EnsureDirectories creates the layout directories when missing.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.OutputDir, p.RawDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("paths: create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetLogPath returns the path of a log file inside the logs directory.
func (p *Paths) GetLogPath(name string) string {
	return filepath.Join(p.LogsDir, name)
}

// RawKeywordDir returns the raw-export directory for one keyword.
func (p *Paths) RawKeywordDir(keyword string) string {
	return filepath.Join(p.RawDir, keyword)
}

// FileExists reports whether path names an existing file.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
