package bridge

import (
	"path/filepath"
	"strings"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

// DefaultStorageDirName is used under the base directory when no storage
// directory is configured.
const DefaultStorageDirName = "reticulum-mobile"

// NormalizeConfig resolves cfg.StorageDir against baseDir. An empty value
// becomes <baseDir>/reticulum-mobile, an absolute path is kept and anything
// else is joined onto baseDir. A relative baseDir is resolved against the
// working directory so the result is always absolute. Other fields pass
// through untouched.
func NormalizeConfig(cfg nativenode.NodeConfig, baseDir string) nativenode.NodeConfig {
	dir := strings.TrimSpace(cfg.StorageDir)
	switch {
	case dir == "":
		cfg.StorageDir = filepath.Join(baseDir, DefaultStorageDirName)
	case filepath.IsAbs(dir):
		cfg.StorageDir = dir
	default:
		cfg.StorageDir = filepath.Join(baseDir, dir)
	}
	if !filepath.IsAbs(cfg.StorageDir) {
		if abs, err := filepath.Abs(cfg.StorageDir); err == nil {
			cfg.StorageDir = abs
		}
	}
	return cfg
}
