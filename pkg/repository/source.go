package repository

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/bastiangx/cityserve/pkg/city"
	"github.com/bastiangx/cityserve/pkg/trie"
	"github.com/charmbracelet/log"
)

// Source produces the raw city list a Repository is loaded from.
type Source interface {
	// Cities decodes the full record list.
	Cities() ([]city.City, error)
	// Name identifies the source in errors and logs.
	Name() string
}

// IndexSource is a Source that may already hold a built index. Index returns
// nil when the source has to be decoded and inserted record by record.
type IndexSource interface {
	Source
	Index() (*trie.Index, error)
}

// FileSource reads cities from a file on disk. The format is picked from the
// extension: .json for a city list, .msgpack or .snap for an index snapshot.
type FileSource struct {
	Path string
}

// NewFileSource returns a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Name() string {
	return s.Path
}

func (s *FileSource) Cities() ([]city.City, error) {
	format, err := DetectFileFormat(s.Path)
	if err != nil {
		return nil, err
	}
	log.Debugf("Reading %s from %s", format, s.Path)

	file, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.Path, err)
	}
	defer file.Close()

	switch format {
	case FormatSnapshot:
		return trie.DecodeSnapshot(file)
	default:
		return city.Decode(file)
	}
}

// Index reads a snapshot file straight into a trie.Index. A JSON file gives nil.
func (s *FileSource) Index() (*trie.Index, error) {
	format, err := DetectFileFormat(s.Path)
	if err != nil {
		return nil, err
	}
	if format != FormatSnapshot {
		return nil, nil
	}

	file, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.Path, err)
	}
	defer file.Close()

	log.Debugf("Reading prebuilt index from %s", s.Path)
	return trie.ReadSnapshot(file)
}

// ReaderSource decodes a JSON city list from any reader.
type ReaderSource struct {
	Label  string
	Reader io.Reader
}

func (s *ReaderSource) Name() string {
	if s.Label == "" {
		return "reader"
	}
	return s.Label
}

func (s *ReaderSource) Cities() ([]city.City, error) {
	return city.Decode(s.Reader)
}

// SliceSource serves an already decoded list.
type SliceSource []city.City

func (s SliceSource) Name() string {
	return "memory"
}

func (s SliceSource) Cities() ([]city.City, error) {
	return slices.Clone(s), nil
}
