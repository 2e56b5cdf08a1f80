// Package pathutil provides safe path and object-key handling.
package pathutil

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ValidateConfigPath validates a configuration file path.
// Config files are expected to be YAML files.
func ValidateConfigPath(p string) (string, error) {
	if strings.Contains(p, "..") {
		return "", fmt.Errorf("path contains directory traversal pattern: %s", p)
	}

	absPath, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if ext != ".yaml" && ext != ".yml" {
		return "", fmt.Errorf("config file must have .yaml or .yml extension, got %s", ext)
	}

	return absPath, nil
}

// ValidateKey checks that an object key is relative, slash separated and free of traversal.
func ValidateKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("object key must be relative and slash separated: %s", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return "", fmt.Errorf("object key contains directory traversal: %s", key)
		}
	}
	return path.Clean(key), nil
}

// JoinAndValidate safely joins path components and validates the result stays under baseDir.
func JoinAndValidate(baseDir string, elems ...string) (string, error) {
	for _, elem := range elems {
		if strings.Contains(elem, "..") {
			return "", fmt.Errorf("path element contains directory traversal: %s", elem)
		}
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("getting absolute base directory: %w", err)
	}

	absJoined, err := filepath.Abs(filepath.Join(append([]string{baseDir}, elems...)...))
	if err != nil {
		return "", fmt.Errorf("getting absolute joined path: %w", err)
	}

	if !IsWithin(absJoined, absBase) {
		return "", fmt.Errorf("joined path %s is not within base directory %s", absJoined, baseDir)
	}

	return absJoined, nil
}

// IsWithin reports whether absPath equals absDir or lies beneath it.
func IsWithin(absPath, absDir string) bool {
	dir := strings.TrimSuffix(absDir, string(filepath.Separator))
	return absPath == dir || strings.HasPrefix(absPath, dir+string(filepath.Separator))
}

// ArtifactKey returns the object key of a rendered artifact.
func ArtifactKey(reportID, reportType, ext string) string {
	return path.Join("reports", reportID, reportType+"."+strings.TrimPrefix(ext, "."))
}

// UploadKey returns the object key of an uploaded source file.
func UploadKey(reportID, filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "source.csv"
	}
	return path.Join("uploads", reportID, name)
}
