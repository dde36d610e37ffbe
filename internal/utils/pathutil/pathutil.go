package pathutil

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ExpandPath expands the path using the user's home directory.
// If the path starts with "~", it is replaced with the user's home directory.
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}

		path = filepath.Join(homeDir, path[1:])
	}

	return path, nil
}

// ReferenceKey is the storage key of a reference image: <slug>/refs/<hash>.<ext>
func ReferenceKey(slug, hash, extension string) string {
	return path.Join(slug, "refs", hash+normalizeExt(extension))
}

// ArtifactKey is the storage key of a generated image:
// <slug>/generated/<yyyy>/<mm>/<job>_<ordinal>.<ext>
func ArtifactKey(slug string, at time.Time, jobID string, ordinal int, extension string) string {
	return path.Join(
		slug,
		"generated",
		at.UTC().Format("2006"),
		at.UTC().Format("01"),
		fmt.Sprintf("%s_%d%s", jobID, ordinal, normalizeExt(extension)),
	)
}

// CleanKey rejects keys that would escape the storage root.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if key == "" || key == "." {
		return "", fmt.Errorf("invalid storage key")
	}

	return key, nil
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}

	return ext
}
