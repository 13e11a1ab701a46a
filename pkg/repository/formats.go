package repository

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"
)

// FileFormat represents the city source file formats
type FileFormat int

const (
	FormatUnknown  FileFormat = iota
	FormatJSON                // JSON array of cities
	FormatSnapshot            // msgpack index snapshot
)

// FormatInfo contains metadata about a source file format
type FormatInfo struct {
	Format      FileFormat
	Description string
	Extensions  []string
	MinSize     int64 // Minimum expected file size in bytes
}

var supportedFormats = map[FileFormat]FormatInfo{
	FormatJSON: {
		Format:      FormatJSON,
		Description: "JSON City List",
		Extensions:  []string{".json"},
		MinSize:     2, // "[]"
	},
	FormatSnapshot: {
		Format:      FormatSnapshot,
		Description: "Msgpack Index Snapshot",
		Extensions:  []string{".msgpack", ".snap"},
		MinSize:     1,
	},
}

func (f FileFormat) String() string {
	if info, ok := supportedFormats[f]; ok {
		return info.Description
	}
	return "unknown"
}

// ValidateFileFormat checks if a file matches the expected format
func ValidateFileFormat(filename string, expectedFormat FileFormat) error {
	fileInfo, err := os.Stat(filename)
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", filename, err)
	}

	formatInfo, exists := supportedFormats[expectedFormat]
	if !exists {
		return fmt.Errorf("unknown format: %v", expectedFormat)
	}

	if fileInfo.Size() < formatInfo.MinSize {
		return fmt.Errorf("file %s is too small (%d bytes) for format %s (minimum: %d bytes)",
			filename, fileInfo.Size(), formatInfo.Description, formatInfo.MinSize)
	}

	if !HasExtension(filename, expectedFormat) {
		return fmt.Errorf("file %s has invalid extension %s for format %s (expected: %v)",
			filename, filepath.Ext(filename), formatInfo.Description, formatInfo.Extensions)
	}

	switch expectedFormat {
	case FormatJSON:
		return validateJSONFormat(filename)
	case FormatSnapshot:
		return validateSnapshotFormat(filename)
	}
	return nil
}

// validateJSONFormat checks that the file starts with a JSON array
func validateJSONFormat(filename string) error {
	first, err := firstByte(filename, true)
	if err != nil {
		return err
	}
	if first != '[' {
		return fmt.Errorf("file %s does not start with a JSON array", filename)
	}
	log.Debugf("JSON file %s validated", filename)
	return nil
}

// validateSnapshotFormat checks that the file starts with a msgpack map header
func validateSnapshotFormat(filename string) error {
	first, err := firstByte(filename, false)
	if err != nil {
		return err
	}
	isFixMap := first >= 0x80 && first <= 0x8f
	if !isFixMap && first != 0xde && first != 0xdf {
		return fmt.Errorf("file %s does not start with a msgpack map (got 0x%02x)", filename, first)
	}
	log.Debugf("Snapshot file %s validated", filename)
	return nil
}

func firstByte(filename string, skipSpace bool) (byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("failed to read from file %s: %w", filename, err)
		}
		if skipSpace && unicode.IsSpace(rune(b)) {
			continue
		}
		return b, nil
	}
}

// DetectFileFormat attempts to detect the format of a file
func DetectFileFormat(filename string) (FileFormat, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".json":
		if err := ValidateFileFormat(filename, FormatJSON); err != nil {
			return FormatUnknown, err
		}
		return FormatJSON, nil
	case ".msgpack", ".snap":
		if err := ValidateFileFormat(filename, FormatSnapshot); err != nil {
			return FormatUnknown, err
		}
		return FormatSnapshot, nil
	}
	return FormatUnknown, fmt.Errorf("unable to detect format for file %s", filename)
}

// GetFormatInfo returns information about a specific format
func GetFormatInfo(format FileFormat) (FormatInfo, bool) {
	info, exists := supportedFormats[format]
	return info, exists
}

// HasExtension reports whether filename ends in one of the extensions of format.
func HasExtension(filename string, format FileFormat) bool {
	info, ok := GetFormatInfo(format)
	return ok && slices.Contains(info.Extensions, strings.ToLower(filepath.Ext(filename)))
}
