package trie

import (
	"fmt"
	"io"

	"github.com/bastiangx/cityserve/pkg/city"
	"github.com/vmihailenco/msgpack/v5"
)

// snapshotVersion is bumped whenever the archived layout changes.
const snapshotVersion = 1

// snapshot is the archived form of an Index: its records in traversal order.
// The tree itself is rebuilt on decode.
type snapshot struct {
	Version int         `msgpack:"v"`
	Cities  []city.City `msgpack:"c"`
}

var (
	_ msgpack.CustomEncoder = (*Index)(nil)
	_ msgpack.CustomDecoder = (*Index)(nil)
)

// EncodeMsgpack archives the index as its record list.
func (ix *Index) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(snapshot{Version: snapshotVersion, Cities: ix.All()})
}

// DecodeMsgpack replaces the index contents with an archived record list.
func (ix *Index) DecodeMsgpack(dec *msgpack.Decoder) error {
	var s snapshot
	if err := dec.Decode(&s); err != nil {
		return err
	}
	if s.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d (want %d)", s.Version, snapshotVersion)
	}
	fresh := New()
	for _, c := range s.Cities {
		fresh.Insert(c)
	}
	*ix = *fresh
	return nil
}

// WriteSnapshot writes the msgpack archive of ix to w.
func (ix *Index) WriteSnapshot(w io.Writer) error {
	if err := msgpack.NewEncoder(w).Encode(ix); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot builds an Index from an archive written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (*Index, error) {
	ix := New()
	if err := msgpack.NewDecoder(r).Decode(ix); err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return ix, nil
}

// DecodeSnapshot reads only the record list of an archive, without building a tree.
func DecodeSnapshot(r io.Reader) ([]city.City, error) {
	var s snapshot
	if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d (want %d)", s.Version, snapshotVersion)
	}
	return s.Cities, nil
}
