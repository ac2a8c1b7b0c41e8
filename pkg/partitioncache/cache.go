// Package partitioncache implements the bit-exact on-disk partition cache
// file format: one file per partition, holding a length-prefixed sequence
// of (tableAddress, tableData) records.
package partitioncache

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/runutil"

	"github.com/sava-software/rpc-core/pkg/lookup"
)

// ErrNotPresent is returned by Load when the partition file does not
// exist. Callers treat this as "nothing cached yet", not an error.
var ErrNotPresent = errors.New("partitioncache: partition file not present")

// ErrCorrupted is returned by Load when a partition file's declared
// lengths don't reconcile with its actual size.
var ErrCorrupted = errors.New("partitioncache: partition file corrupted")

const addressSize = 32

// RawTable is the minimal representation the cache reads and writes: an
// address plus the table's serialized bytes. Translating to and from a
// concrete lookup.LookupTable implementation is the caller's
// responsibility (the cache itself doesn't know how to deserialize a
// table's contents, only how to frame them on disk).
type RawTable struct {
	Address lookup.Address
	Data    []byte
}

// Store reads and writes per-partition cache files under a directory.
type Store struct {
	Dir    string
	Logger log.Logger

	// Encode/Decode adapt between lookup.LookupTable and the raw bytes the
	// cache persists. Both must be set for Store/Load to be usable.
	Encode func(lookup.LookupTable) (RawTable, error)
	Decode func(RawTable) (lookup.LookupTable, error)
}

func (s *Store) logger() log.Logger {
	if s.Logger == nil {
		return log.NewNopLogger()
	}
	return s.Logger
}

func (s *Store) path(partition int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%d.dat", partition))
}

// Load reads partition p's cache file, returning ErrNotPresent if the file
// doesn't exist and ErrCorrupted if the recorded lengths don't add up to
// the file size.
func (s *Store) Load(partition int) ([]lookup.LookupTable, error) {
	f, err := os.Open(s.path(partition))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotPresent
		}
		return nil, err
	}
	defer runutil.CloseWithLogOnErr(s.logger(), f, "close partition cache file")

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	fileSize := info.Size()

	r := bufio.NewReader(f)
	var numTables uint32
	if err := binary.Read(r, binary.LittleEndian, &numTables); err != nil {
		return nil, fmt.Errorf("%w: reading numTables: %v", ErrCorrupted, err)
	}

	tables := make([]lookup.LookupTable, 0, numTables)
	var totalSerializedLength int64
	for i := uint32(0); i < numTables; i++ {
		var addr lookup.Address
		if _, err := io.ReadFull(r, addr[:]); err != nil {
			return nil, fmt.Errorf("%w: reading table address %d: %v", ErrCorrupted, i, err)
		}

		var length uint32
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return nil, fmt.Errorf("%w: reading serializedLength %d: %v", ErrCorrupted, i, err)
		}
		totalSerializedLength += int64(length)

		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("%w: reading table data %d: %v", ErrCorrupted, i, err)
		}

		if s.Decode == nil {
			return nil, fmt.Errorf("partitioncache: Decode not configured")
		}
		table, err := s.Decode(RawTable{Address: addr, Data: data})
		if err != nil {
			return nil, fmt.Errorf("%w: decoding table %d: %v", ErrCorrupted, i, err)
		}
		tables = append(tables, table)
	}

	expected := fileSize - 4 - (addressSize+4)*int64(numTables)
	if totalSerializedLength != expected {
		return nil, fmt.Errorf("%w: serialized lengths sum to %d, expected %d", ErrCorrupted, totalSerializedLength, expected)
	}

	return tables, nil
}

// Store writes partition p's cache file with CREATE|WRITE|TRUNCATE
// semantics, via a temp-file-then-rename so a reader never observes a
// partially written file.
func (s *Store) Store(partition int, tables []lookup.LookupTable) error {
	if s.Encode == nil {
		return fmt.Errorf("partitioncache: Encode not configured")
	}

	tmp, err := os.CreateTemp(s.Dir, fmt.Sprintf(".%d.dat.tmp-*", partition))
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	w := bufio.NewWriter(tmp)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(tables))); err != nil {
		runutil.CloseWithLogOnErr(s.logger(), tmp, "close partition cache temp file")
		return err
	}
	for _, table := range tables {
		raw, err := s.Encode(table)
		if err != nil {
			runutil.CloseWithLogOnErr(s.logger(), tmp, "close partition cache temp file")
			return err
		}
		if _, err := w.Write(raw.Address[:]); err != nil {
			runutil.CloseWithLogOnErr(s.logger(), tmp, "close partition cache temp file")
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(raw.Data))); err != nil {
			runutil.CloseWithLogOnErr(s.logger(), tmp, "close partition cache temp file")
			return err
		}
		if _, err := w.Write(raw.Data); err != nil {
			runutil.CloseWithLogOnErr(s.logger(), tmp, "close partition cache temp file")
			return err
		}
	}
	if err := w.Flush(); err != nil {
		runutil.CloseWithLogOnErr(s.logger(), tmp, "close partition cache temp file")
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path(partition))
}
