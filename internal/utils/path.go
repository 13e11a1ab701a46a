package utils

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/log"
)

// AppName names the config directory and temp fallbacks.
const AppName = "cityserve"

// PathResolver locates the city data file and the config directory whether the
// binary is started from the repo, from an install prefix or through a symlink.
type PathResolver struct {
	executableDir string
	workDir       string
	homeDir       string
	configDir     string
}

// NewPathResolver snapshots the executable, working and config directories.
func NewPathResolver() (*PathResolver, error) {
	execDir, err := GetExecutableDir()
	if err != nil {
		return nil, err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warnf("Could not determine home directory: %v", err)
		homeDir = os.TempDir()
	}
	workDir, err := os.Getwd()
	if err != nil {
		workDir = execDir
	}

	pr := &PathResolver{
		executableDir: execDir,
		workDir:       workDir,
		homeDir:       homeDir,
		configDir:     ConfigDirFor(homeDir),
	}
	log.Debugf("PathResolver initialized: execDir=%s, workDir=%s, configDir=%s", execDir, workDir, pr.configDir)
	return pr, nil
}

// ConfigDirFor returns the platform config directory for cityserve under homeDir.
func ConfigDirFor(homeDir string) string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppName)
		}
		return filepath.Join(homeDir, "AppData", "Roaming", AppName)
	default:
		if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
			return filepath.Join(configHome, AppName)
		}
		return filepath.Join(homeDir, ".config", AppName)
	}
}

// ConfigDir returns the config directory
func (pr *PathResolver) ConfigDir() string {
	return pr.configDir
}

// ExecutableDir returns the directory containing the executable
func (pr *PathResolver) ExecutableDir() string {
	return pr.executableDir
}

// Candidates lists where a data file named by userPath may live, in the order
// they are tried: as given, next to the binary, under the working directory,
// then the data directory of the config dir.
func (pr *PathResolver) Candidates(userPath string) []string {
	if filepath.IsAbs(userPath) {
		return []string{userPath}
	}
	base := filepath.Base(userPath)
	return []string{
		filepath.Join(pr.workDir, userPath),
		filepath.Join(pr.executableDir, userPath),
		filepath.Join(filepath.Dir(pr.executableDir), userPath),
		filepath.Join(pr.configDir, "data", base),
	}
}

// ResolveDataFile returns the first candidate for userPath that is a regular
// file. When none is, it returns the first candidate and os.ErrNotExist so the
// caller can report the path it expected.
func (pr *PathResolver) ResolveDataFile(userPath string) (string, error) {
	candidates := pr.Candidates(userPath)
	for _, path := range candidates {
		if FileExists(path) {
			log.Debugf("Found data file: %s", path)
			return path, nil
		}
		log.Debugf("Data file candidate not found: %s", path)
	}
	return candidates[0], os.ErrNotExist
}

// ConfigPath returns a writable location for filename, preferring the config
// directory and falling back to a temp directory.
func (pr *PathResolver) ConfigPath(filename string) string {
	if CheckDirStatus(pr.configDir).Writable {
		return filepath.Join(pr.configDir, filename)
	}
	fallback := filepath.Join(os.TempDir(), AppName)
	if CheckDirStatus(fallback).Writable {
		path := filepath.Join(fallback, filename)
		log.Warnf("Using fallback config location: %s", path)
		return path
	}
	path := filepath.Join(os.TempDir(), filename)
	log.Warnf("Using temporary config file: %s", path)
	return path
}

// RuntimeInfo returns the resolved directories for -v style diagnostics.
func (pr *PathResolver) RuntimeInfo() map[string]string {
	return map[string]string{
		"executable_dir": pr.executableDir,
		"work_dir":       pr.workDir,
		"home_dir":       pr.homeDir,
		"config_dir":     pr.configDir,
		"os":             runtime.GOOS,
		"arch":           runtime.GOARCH,
	}
}
