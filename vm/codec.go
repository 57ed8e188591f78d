package vm

// Custom binary encoding for the task store. Not a general serialization
// library: the shapes here are few and fixed, and a minimal purpose-built
// codec keeps this package free of a serialization dependency while covering
// exactly what the store needs. Little-endian throughout.
//
//	u32:    one size-tag byte in {1,2,4}, then that many little-endian bytes
//	u8:     one raw byte
//	string: 2-byte LE length, then raw UTF-8 bytes (length <= 65535)
//	Task:   id(u32), title(string), status(1 byte), instructions(string)
//	[]Task: length as variable-width u32, then tasks in order
//	StorageData: tasks([]Task), next_id(u32)

import (
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	sizeTagU8  byte = 1
	sizeTagU16 byte = 2
	sizeTagU32 byte = 4

	maxStringBytes = 65535
	maxTaskCount   = 1_000_000
)

func writeAll(w io.Writer, b []byte) error {
	if _, err := w.Write(b); err != nil {
		return errors.Wrap(ErrStorageWriteError, err.Error())
	}
	return nil
}

func readExact(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return errors.Wrap(ErrStorageReadError, err.Error())
	}
	return nil
}

func encodeU32(w io.Writer, n uint32) error {
	switch {
	case n <= 0xff:
		if err := writeAll(w, []byte{sizeTagU8}); err != nil {
			return err
		}
		return writeAll(w, []byte{byte(n)})
	case n <= 0xffff:
		if err := writeAll(w, []byte{sizeTagU16}); err != nil {
			return err
		}
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(n))
		return writeAll(w, buf[:])
	default:
		if err := writeAll(w, []byte{sizeTagU32}); err != nil {
			return err
		}
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], n)
		return writeAll(w, buf[:])
	}
}

func decodeU32(r io.Reader) (uint32, error) {
	var tag [1]byte
	if err := readExact(r, tag[:]); err != nil {
		return 0, err
	}
	switch tag[0] {
	case sizeTagU8:
		var b [1]byte
		if err := readExact(r, b[:]); err != nil {
			return 0, err
		}
		return uint32(b[0]), nil
	case sizeTagU16:
		var b [2]byte
		if err := readExact(r, b[:]); err != nil {
			return 0, err
		}
		return uint32(binary.LittleEndian.Uint16(b[:])), nil
	case sizeTagU32:
		var b [4]byte
		if err := readExact(r, b[:]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint32(b[:]), nil
	default:
		return 0, ErrStorageReadError
	}
}

func encodeU8(w io.Writer, b byte) error {
	return writeAll(w, []byte{b})
}

func decodeU8(r io.Reader) (byte, error) {
	var b [1]byte
	if err := readExact(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func encodeString(w io.Writer, s string) error {
	bytes := []byte(s)
	if len(bytes) > maxStringBytes {
		return ErrStorageSizeTooBig
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(bytes)))
	if err := writeAll(w, lenBuf[:]); err != nil {
		return err
	}
	return writeAll(w, bytes)
}

func decodeString(r io.Reader) (string, error) {
	var lenBuf [2]byte
	if err := readExact(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if err := readExact(r, buf); err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", ErrStorageUTF8ConversionFailed
	}
	return string(buf), nil
}

func encodeTask(w io.Writer, t Task) error {
	if err := encodeU32(w, t.ID); err != nil {
		return err
	}
	if err := encodeString(w, t.Title); err != nil {
		return err
	}
	if err := encodeU8(w, byte(t.Status)); err != nil {
		return err
	}
	return encodeString(w, t.Instructions)
}

func decodeTask(r io.Reader) (Task, error) {
	id, err := decodeU32(r)
	if err != nil {
		return Task{}, err
	}
	title, err := decodeString(r)
	if err != nil {
		return Task{}, err
	}
	statusByte, err := decodeU8(r)
	if err != nil {
		return Task{}, err
	}
	status, err := TaskStatusFromU32(uint32(statusByte))
	if err != nil {
		return Task{}, err
	}
	instructions, err := decodeString(r)
	if err != nil {
		return Task{}, err
	}
	return Task{ID: id, Title: title, Status: status, Instructions: instructions}, nil
}

// StorageData is the top-level persisted shape: every live task plus the
// next id to assign.
type StorageData struct {
	Tasks  []Task
	NextID uint32
}

// Encode writes StorageData in the codec's binary format.
func (d *StorageData) Encode(w io.Writer) error {
	if err := encodeU32(w, uint32(len(d.Tasks))); err != nil {
		return err
	}
	for _, t := range d.Tasks {
		if err := encodeTask(w, t); err != nil {
			return err
		}
	}
	return encodeU32(w, d.NextID)
}

// Decode reads StorageData from r.
func (d *StorageData) Decode(r io.Reader) error {
	n, err := decodeU32(r)
	if err != nil {
		return err
	}
	if n > maxTaskCount {
		return ErrStorageSizeTooBig
	}
	tasks := make([]Task, 0, n)
	for i := uint32(0); i < n; i++ {
		t, err := decodeTask(r)
		if err != nil {
			return err
		}
		tasks = append(tasks, t)
	}
	nextID, err := decodeU32(r)
	if err != nil {
		return err
	}
	d.Tasks = tasks
	d.NextID = nextID
	return nil
}
