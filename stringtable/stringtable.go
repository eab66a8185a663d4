// Package stringtable parses the xl/sharedStrings.xml part and provides
// indexed access to the shared string values.
//
// Two backends implement the same narrow contract: an in-memory slice for
// ordinary workbooks, and a disk-backed key-value store (diskv) that is
// selected when the part's decompressed size crosses a configured
// threshold, so pathological shared-string tables never have to be resident
// in memory all at once.
package stringtable

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/peterbourgon/diskv/v3"

	"github.com/TsubasaBE/go-xlsx/internal/xmlstream"
)

// Store is the read-only contract shared by both backends.  Get returns
// false (not an error) for out-of-range indices.  Close releases any
// on-disk state; it is a no-op for the in-memory backend.
type Store interface {
	Get(idx int) (string, bool)
	Len() int
	Close() error
}

// Options controls backend selection at build time.
type Options struct {
	// SpillEnabled turns on the disk-backed backend.
	SpillEnabled bool
	// SpillThreshold is the decompressed part size in bytes at or above
	// which the disk backend is chosen.
	SpillThreshold int64
	// CacheSize bounds the disk backend's in-memory read cache of decoded
	// entries, in bytes.  Zero selects a small default.
	CacheSize uint64
}

const defaultCacheSize = 1 << 20

// New builds a Store by streaming the <si> items from r.  segmentSize is
// the decompressed byte length of the part (from the zip directory) and
// drives the spill decision; the stream itself is consumed exactly once
// either way.
func New(r io.Reader, segmentSize int64, opts Options) (Store, error) {
	if opts.SpillEnabled && segmentSize >= opts.SpillThreshold {
		return newDiskStore(r, opts)
	}
	return newMemStore(r)
}

// parse walks the <sst> stream and calls add for each <si> item in index
// order.  An item that fails to decode is added as an empty string, but the
// XML decoder does not resume after an error, so the parse then ends with
// that error and no Store is built.
func parse(r io.Reader, add func(s string) error) error {
	dec := xmlstream.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stringtable: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "si" {
			continue
		}
		s, err := xmlstream.Text(dec, se)
		if err != nil {
			s = ""
		}
		if err := add(s); err != nil {
			return err
		}
	}
}

// ── in-memory backend ─────────────────────────────────────────────────────────

type memStore struct {
	strings []string
}

func newMemStore(r io.Reader) (*memStore, error) {
	st := &memStore{}
	err := parse(r, func(s string) error {
		st.strings = append(st.strings, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (st *memStore) Get(idx int) (string, bool) {
	if idx < 0 || idx >= len(st.strings) {
		return "", false
	}
	return st.strings[idx], true
}

func (st *memStore) Len() int { return len(st.strings) }

func (st *memStore) Close() error { return nil }

// ── disk-backed backend ───────────────────────────────────────────────────────

type diskStore struct {
	kv    *diskv.Diskv
	base  string
	count int
}

func newDiskStore(r io.Reader, opts Options) (*diskStore, error) {
	cache := opts.CacheSize
	if cache == 0 {
		cache = defaultCacheSize
	}
	base := filepath.Join(os.TempDir(), "go-xlsx-sst-"+uuid.NewString())
	kv := diskv.New(diskv.Options{
		BasePath:     base,
		CacheSizeMax: cache,
		// Fan entries out over subdirectories so huge tables do not put
		// millions of files in one directory.
		Transform: func(key string) []string {
			if len(key) > 3 {
				return []string{key[:len(key)-3]}
			}
			return []string{}
		},
	})

	st := &diskStore{kv: kv, base: base}
	err := parse(r, func(s string) error {
		if err := kv.Write(strconv.Itoa(st.count), []byte(s)); err != nil {
			return fmt.Errorf("stringtable: spill entry %d: %w", st.count, err)
		}
		st.count++
		return nil
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func (st *diskStore) Get(idx int) (string, bool) {
	if idx < 0 || idx >= st.count {
		return "", false
	}
	b, err := st.kv.Read(strconv.Itoa(idx))
	if err != nil {
		return "", false
	}
	return string(b), true
}

func (st *diskStore) Len() int { return st.count }

// Close erases the spill directory.  The store is unusable afterwards.
func (st *diskStore) Close() error {
	if err := st.kv.EraseAll(); err != nil {
		return fmt.Errorf("stringtable: erase spill: %w", err)
	}
	return os.RemoveAll(st.base)
}
