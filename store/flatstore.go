package store

import (
	"encoding/binary"
	"io"
	"os"
	"path"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
)

const (
	storeMagic         = "RSFLAT01"
	defaultSegmentSize = 32 * 1024

	// NumHeaderSlots is the number of int32 header slots a store file carries in front of
	// its payload.
	NumHeaderSlots = 8
)

// FlatStore is a growable, randomly addressable array of little-endian 32 bit integers
// with a small header region, persisted as one file. The payload is addressed by byte
// offset, the header by slot number, so payload offset 0 never collides with a header
// value.
//
// A FlatStore is not synchronized. Once it is no longer written to, GetInt and GetHeader
// are safe for concurrent callers.
type FlatStore struct {
	filePath    string
	segmentSize int
	header      [NumHeaderSlots]int32
	data        []byte
	closed      bool
}

// NewFlatStore creates an empty, unloaded store persisting to the given file path.
func NewFlatStore(filePath string) *FlatStore {
	return &FlatStore{
		filePath:    filePath,
		segmentSize: defaultSegmentSize,
	}
}

// SetSegmentSize sets the granularity in bytes by which the payload grows. Values below
// one int are raised to a single segment of the default size.
func (s *FlatStore) SetSegmentSize(bytes int) {
	if bytes < 4 {
		bytes = defaultSegmentSize
	}
	s.segmentSize = bytes
}

// Create allocates the payload with the given initial capacity in bytes.
func (s *FlatStore) Create(initialBytes int) {
	s.data = make([]byte, 0)
	s.EnsureCapacity(initialBytes)
}

// LoadExisting reads the store from its file. It returns false without an error if the
// file simply does not exist.
func (s *FlatStore) LoadExisting() (bool, error) {
	if s.closed {
		return false, errors.Errorf("Unable to load store %s: store is closed", s.filePath)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "Unable to open store file %s", s.filePath)
	}
	defer file.Close()

	magic := make([]byte, len(storeMagic))
	if _, err = io.ReadFull(file, magic); err != nil {
		return false, errors.Wrapf(err, "Unable to read magic bytes of store file %s", s.filePath)
	}
	if string(magic) != storeMagic {
		return false, errors.Errorf("File %s is not a flat store file (magic bytes %q)", s.filePath, magic)
	}

	var segmentSize, dataLen int32
	if err = binary.Read(file, binary.LittleEndian, &segmentSize); err != nil {
		return false, errors.Wrapf(err, "Unable to read segment size of store file %s", s.filePath)
	}
	if err = binary.Read(file, binary.LittleEndian, &dataLen); err != nil {
		return false, errors.Wrapf(err, "Unable to read payload length of store file %s", s.filePath)
	}
	if segmentSize < 4 || dataLen < 0 {
		return false, errors.Errorf("Store file %s has an invalid geometry (segmentSize=%d, dataLen=%d)", s.filePath, segmentSize, dataLen)
	}

	for slot := 0; slot < NumHeaderSlots; slot++ {
		if err = binary.Read(file, binary.LittleEndian, &s.header[slot]); err != nil {
			return false, errors.Wrapf(err, "Unable to read header slot %d of store file %s", slot, s.filePath)
		}
	}

	data := make([]byte, dataLen)
	if _, err = io.ReadFull(file, data); err != nil {
		return false, errors.Wrapf(err, "Unable to read %d payload bytes of store file %s", dataLen, s.filePath)
	}

	s.segmentSize = int(segmentSize)
	s.data = data

	sigolo.Debugf("Loaded flat store %s with %d payload bytes", s.filePath, dataLen)
	return true, nil
}

// EnsureCapacity grows the payload so that at least the given number of bytes is
// addressable. Growth happens in whole segments, new bytes are zero.
func (s *FlatStore) EnsureCapacity(bytes int) {
	if bytes <= len(s.data) {
		return
	}

	segments := (bytes + s.segmentSize - 1) / s.segmentSize
	grown := make([]byte, segments*s.segmentSize)
	copy(grown, s.data)
	s.data = grown
}

// GetInt reads the int32 at the given payload byte offset.
func (s *FlatStore) GetInt(byteOffset int) int32 {
	return int32(binary.LittleEndian.Uint32(s.data[byteOffset:]))
}

// SetInt writes the int32 at the given payload byte offset.
func (s *FlatStore) SetInt(byteOffset int, value int32) {
	binary.LittleEndian.PutUint32(s.data[byteOffset:], uint32(value))
}

// GetHeader reads the given header slot.
func (s *FlatStore) GetHeader(slot int) int32 {
	return s.header[slot]
}

// SetHeader writes the given header slot.
func (s *FlatStore) SetHeader(slot int, value int32) {
	s.header[slot] = value
}

// Capacity returns the addressable payload size in bytes.
func (s *FlatStore) Capacity() int {
	return len(s.data)
}

// Flush writes the whole store to its file.
func (s *FlatStore) Flush() error {
	if s.closed {
		return errors.Errorf("Unable to flush store %s: store is closed", s.filePath)
	}

	folder := path.Dir(s.filePath)
	if _, err := os.Stat(folder); os.IsNotExist(err) {
		err = os.MkdirAll(folder, os.ModePerm)
		if err != nil {
			return errors.Wrapf(err, "Unable to create folder %s for store file", folder)
		}
	}

	file, err := os.Create(s.filePath)
	if err != nil {
		return errors.Wrapf(err, "Unable to create store file %s", s.filePath)
	}
	defer file.Close()

	if _, err = file.Write([]byte(storeMagic)); err != nil {
		return errors.Wrapf(err, "Unable to write magic bytes to store file %s", s.filePath)
	}
	if err = binary.Write(file, binary.LittleEndian, int32(s.segmentSize)); err != nil {
		return errors.Wrapf(err, "Unable to write segment size to store file %s", s.filePath)
	}
	if err = binary.Write(file, binary.LittleEndian, int32(len(s.data))); err != nil {
		return errors.Wrapf(err, "Unable to write payload length to store file %s", s.filePath)
	}
	for slot := 0; slot < NumHeaderSlots; slot++ {
		if err = binary.Write(file, binary.LittleEndian, s.header[slot]); err != nil {
			return errors.Wrapf(err, "Unable to write header slot %d to store file %s", slot, s.filePath)
		}
	}
	if _, err = file.Write(s.data); err != nil {
		return errors.Wrapf(err, "Unable to write payload to store file %s", s.filePath)
	}

	sigolo.Debugf("Flushed flat store %s (%d payload bytes)", s.filePath, len(s.data))
	return nil
}

// Close releases the payload. Closing twice is a no-op.
func (s *FlatStore) Close() {
	s.data = nil
	s.closed = true
}

// IsClosed reports whether Close has been called.
func (s *FlatStore) IsClosed() bool {
	return s.closed
}
