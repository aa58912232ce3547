// Package snapshot exports and restores the full key space of a node's
// storage: ledger accounts and pool records alike.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"DiceVault/internal/storage"
	"DiceVault/internal/types"
)

// formatVersion is the current snapshot format version.
const formatVersion = 1

var (
	ErrChecksum  = errors.New("snapshot checksum mismatch")
	ErrVersion   = errors.New("unsupported snapshot version")
	ErrMalformed = errors.New("malformed snapshot")
)

// entry holds one key-value pair copied out of storage.
type entry struct {
	key   []byte
	value []byte
}

// Create builds an uncompressed snapshot of every key in storage.
func Create(db *storage.Storage, takenAt int64) ([]byte, error) {
	entries, err := collect(db)
	if err != nil {
		return nil, fmt.Errorf("collect entries:\n%w", err)
	}

	return build(takenAt, entries), nil
}

// Apply verifies a snapshot and writes all its entries in one batch.
func Apply(db *storage.Storage, data []byte) (*types.Snapshot, error) {
	snap, entries, err := parse(data)
	if err != nil {
		return nil, err
	}

	pairs := make([]storage.KeyValue, len(entries))
	for i, e := range entries {
		pairs[i] = storage.KeyValue{Key: e.key, Value: e.value}
	}

	if err := db.SetBatch(pairs); err != nil {
		return nil, fmt.Errorf("write entries:\n%w", err)
	}

	return snap, nil
}

// Verify decodes a snapshot and checks its version and checksum.
func Verify(data []byte) (*types.Snapshot, error) {
	snap, _, err := parse(data)
	return snap, err
}

// parse decodes a snapshot, checks it and returns its entries in key order.
func parse(data []byte) (snap *types.Snapshot, entries []entry, err error) {
	// FlatBuffers accessors panic on truncated input.
	defer func() {
		if r := recover(); r != nil {
			snap, entries, err = nil, nil, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	if len(data) < 8 {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}

	snap = types.GetRootAsSnapshot(data, 0)

	if snap.Version() != formatVersion {
		return nil, nil, fmt.Errorf("%w: %d", ErrVersion, snap.Version())
	}

	stored := snap.ChecksumBytes()
	if len(stored) != blake3.New().Size() {
		return nil, nil, fmt.Errorf("%w: checksum length %d", ErrMalformed, len(stored))
	}

	entries = make([]entry, snap.EntriesLength())

	var e types.SnapshotEntry
	for i := range entries {
		if !snap.Entries(&e, i) {
			return nil, nil, fmt.Errorf("%w: entry %d", ErrMalformed, i)
		}

		entries[i] = entry{key: clone(e.KeyBytes()), value: clone(e.ValueBytes())}
	}

	sortEntries(entries)

	computed := checksum(snap.Version(), snap.TakenAt(), entries)
	if !bytes.Equal(computed[:], stored) {
		return nil, nil, ErrChecksum
	}

	return snap, entries, nil
}

// Export writes a zstd-compressed snapshot to w.
func Export(db *storage.Storage, w io.Writer, takenAt int64) (int, error) {
	data, err := Create(db, takenAt)
	if err != nil {
		return 0, err
	}

	compressed, err := Compress(data)
	if err != nil {
		return 0, err
	}

	return w.Write(compressed)
}

// Import reads a zstd-compressed snapshot from r and applies it.
func Import(db *storage.Storage, r io.Reader) (*types.Snapshot, error) {
	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot:\n%w", err)
	}

	data, err := Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return Apply(db, data)
}

// Compress compresses snapshot data using zstd.
func Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// Decompress decompresses zstd-compressed snapshot data.
func Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}

// collect copies every pair out of storage; iterator buffers are reused.
func collect(db *storage.Storage) ([]entry, error) {
	var entries []entry

	err := db.Iterate(func(key, value []byte) error {
		entries = append(entries, entry{key: clone(key), value: clone(value)})
		return nil
	})

	return entries, err
}

// build encodes entries as a FlatBuffers Snapshot with its checksum.
func build(takenAt int64, entries []entry) []byte {
	sortEntries(entries)
	sum := checksum(formatVersion, takenAt, entries)

	builder := flatbuffers.NewBuilder(1024)

	offsets := make([]flatbuffers.UOffsetT, len(entries))
	for i, e := range entries {
		keyOffset := builder.CreateByteVector(e.key)
		valueOffset := builder.CreateByteVector(e.value)

		types.SnapshotEntryStart(builder)
		types.SnapshotEntryAddKey(builder, keyOffset)
		types.SnapshotEntryAddValue(builder, valueOffset)
		offsets[i] = types.SnapshotEntryEnd(builder)
	}

	types.SnapshotStartEntriesVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	entriesVector := builder.EndVector(len(offsets))

	checksumOffset := builder.CreateByteVector(sum[:])

	types.SnapshotStart(builder)
	types.SnapshotAddVersion(builder, formatVersion)
	types.SnapshotAddTakenAt(builder, takenAt)
	types.SnapshotAddEntries(builder, entriesVector)
	types.SnapshotAddChecksum(builder, checksumOffset)
	builder.Finish(types.SnapshotEnd(builder))

	return builder.FinishedBytes()
}

// checksum hashes the canonical form of a snapshot.
// Format: version (4 bytes) + taken_at (8 bytes) + for each sorted entry:
// u32 key_len + key + u32 value_len + value, all big-endian.
func checksum(version uint32, takenAt int64, entries []entry) [32]byte {
	hasher := blake3.New()

	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], version)
	hasher.Write(buf[:4])

	binary.BigEndian.PutUint64(buf[:], uint64(takenAt))
	hasher.Write(buf[:])

	for _, e := range entries {
		binary.BigEndian.PutUint32(buf[:4], uint32(len(e.key)))
		hasher.Write(buf[:4])
		hasher.Write(e.key)

		binary.BigEndian.PutUint32(buf[:4], uint32(len(e.value)))
		hasher.Write(buf[:4])
		hasher.Write(e.value)
	}

	var sum [32]byte
	hasher.Sum(sum[:0])

	return sum
}

func sortEntries(entries []entry) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)

	return out
}
