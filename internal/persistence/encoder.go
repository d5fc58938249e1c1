package persistence

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"strings"

	"vectorstore-go/pkg/managed"
)

const textRecordSeparator = "=== WAL RECORD ==="

// WALEncoder defines the interface for encoding and decoding WAL records
type WALEncoder interface {
	// EncodeRecord writes a WAL record to the writer
	EncodeRecord(writer io.Writer, record *WALRecord) error

	// DecodeRecord reads a WAL record from the reader, io.EOF at a clean end
	DecodeRecord(reader *bufio.Reader) (*WALRecord, error)

	// Name returns the encoder name for identification
	Name() string
}

// EncoderFactory returns the text encoder for "text" and the binary encoder otherwise
func EncoderFactory(encoderType, version string) WALEncoder {
	if encoderType == "text" {
		return NewTextWALEncoder(version)
	}
	return NewBinaryWALEncoder(version)
}

// BinaryWALEncoder frames each record as a big-endian length prefix, a body and the CRC32
// (IEEE) of the body. The length counts body and checksum.
//
// Body layout:
//
//	log ID       uint64
//	operation    uint8
//	vector ID    uint64
//	dimension    uint32, followed by dimension float32 values
//	columns      uint32 length, followed by the columns JSON
//	attributes   uint32 length, followed by the attributes JSON
type BinaryWALEncoder struct {
	version string
}

// body bytes that do not depend on the record contents
const fixedBodyLen = 8 + 1 + 8 + 4 + 4 + 4

// maxRecordLen bounds a single framed record; longer length prefixes are treated as corruption
const maxRecordLen = 64 << 20

func NewBinaryWALEncoder(version string) *BinaryWALEncoder {
	return &BinaryWALEncoder{version: version}
}

func (e *BinaryWALEncoder) Name() string {
	return "binary"
}

func (e *BinaryWALEncoder) EncodeRecord(writer io.Writer, record *WALRecord) error {
	columnBytes, err := json.Marshal(record.Columns)
	if err != nil {
		return fmt.Errorf("failed to marshal columns: %w", err)
	}
	attrBytes, err := json.Marshal(record.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	bodyLen := fixedBodyLen + 4*len(record.Vector) + len(columnBytes) + len(attrBytes)
	if bodyLen+4 > maxRecordLen {
		return fmt.Errorf("record of %d bytes exceeds limit of %d bytes", bodyLen+4, maxRecordLen)
	}
	buf := make([]byte, 4, 4+bodyLen+4)
	binary.BigEndian.PutUint32(buf, uint32(bodyLen+4))

	buf = binary.BigEndian.AppendUint64(buf, record.LogID)
	buf = append(buf, byte(record.Operation))
	buf = binary.BigEndian.AppendUint64(buf, record.VectorID)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(record.Vector)))
	for _, f := range record.Vector {
		buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(f))
	}
	buf = appendBlock(buf, columnBytes)
	buf = appendBlock(buf, attrBytes)
	buf = binary.BigEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf[4:]))

	_, err = writer.Write(buf)
	return err
}

func appendBlock(buf, block []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(block)))
	return append(buf, block...)
}

func (e *BinaryWALEncoder) DecodeRecord(reader *bufio.Reader) (*WALRecord, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(reader, prefix[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("truncated length prefix: %w", err)
		}
		return nil, err
	}

	recordLen := binary.BigEndian.Uint32(prefix[:])
	if recordLen < fixedBodyLen+4 {
		return nil, fmt.Errorf("record too short: %d bytes", recordLen)
	}
	if recordLen > maxRecordLen {
		return nil, fmt.Errorf("record length %d exceeds limit of %d bytes", recordLen, maxRecordLen)
	}

	frame := make([]byte, recordLen)
	if _, err := io.ReadFull(reader, frame); err != nil {
		return nil, fmt.Errorf("failed to read record data: %w", err)
	}

	body := frame[:len(frame)-4]
	want := binary.BigEndian.Uint32(frame[len(frame)-4:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, fmt.Errorf("checksum mismatch: expected %d, got %d", want, got)
	}

	c := cursor{data: body}
	record := &WALRecord{Version: e.version}
	record.LogID = c.u64()
	record.Operation = WALOperation(c.u8())
	record.VectorID = c.u64()

	dim := int(c.u32())
	if c.remaining() < 4*dim {
		return nil, fmt.Errorf("vector of dimension %d overruns record", dim)
	}
	if dim > 0 {
		record.Vector = make([]float32, dim)
		for i := range record.Vector {
			record.Vector[i] = math.Float32frombits(c.u32())
		}
	}

	columnBytes, err := c.block()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	if err := json.Unmarshal(columnBytes, &record.Columns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal columns: %w", err)
	}

	attrBytes, err := c.block()
	if err != nil {
		return nil, fmt.Errorf("failed to read attributes: %w", err)
	}
	if err := json.Unmarshal(attrBytes, &record.Attributes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
	}

	return record, nil
}

// cursor reads big-endian fields from a checksummed body. Fixed-size reads assume the caller
// checked the length; block checks its own bounds.
type cursor struct {
	data []byte
	off  int
}

func (c *cursor) remaining() int { return len(c.data) - c.off }

func (c *cursor) u8() byte {
	b := c.data[c.off]
	c.off++
	return b
}

func (c *cursor) u32() uint32 {
	v := binary.BigEndian.Uint32(c.data[c.off:])
	c.off += 4
	return v
}

func (c *cursor) u64() uint64 {
	v := binary.BigEndian.Uint64(c.data[c.off:])
	c.off += 8
	return v
}

func (c *cursor) block() ([]byte, error) {
	if c.remaining() < 4 {
		return nil, fmt.Errorf("length prefix overruns record")
	}
	n := int(c.u32())
	if c.remaining() < n {
		return nil, fmt.Errorf("block of %d bytes overruns record", n)
	}
	block := c.data[c.off : c.off+n]
	c.off += n
	return block, nil
}

// TextWALEncoder implements human-readable text encoding for debugging.
// Each record is a separator line followed by one line of JSON.
type TextWALEncoder struct {
	version string
}

// NewTextWALEncoder creates a new text WAL encoder
func NewTextWALEncoder(version string) *TextWALEncoder {
	return &TextWALEncoder{version: version}
}

func (e *TextWALEncoder) Name() string {
	return "text"
}

type textRecord struct {
	LogID      uint64                   `json:"log_id"`
	Version    string                   `json:"version"`
	Operation  string                   `json:"operation"`
	VectorID   uint64                   `json:"vector_id"`
	Vector     []float32                `json:"vector"`
	Columns    map[string]managed.Value `json:"columns"`
	Attributes map[string]int64         `json:"attributes"`
}

func (e *TextWALEncoder) EncodeRecord(writer io.Writer, record *WALRecord) error {
	jsonBytes, err := json.Marshal(textRecord{
		LogID:      record.LogID,
		Version:    record.Version,
		Operation:  record.Operation.String(),
		VectorID:   record.VectorID,
		Vector:     record.Vector,
		Columns:    record.Columns,
		Attributes: record.Attributes,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = fmt.Fprintf(writer, "%s\n%s\n", textRecordSeparator, jsonBytes)
	return err
}

func (e *TextWALEncoder) DecodeRecord(reader *bufio.Reader) (*WALRecord, error) {
	line, err := readNonEmptyLine(reader)
	if err != nil {
		return nil, err
	}

	if line != textRecordSeparator {
		return nil, fmt.Errorf("invalid record format: expected separator")
	}

	body, err := readNonEmptyLine(reader)
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("record body missing: %w", io.ErrUnexpectedEOF)
		}
		return nil, err
	}

	var data textRecord
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	op, err := ParseWALOperation(data.Operation)
	if err != nil {
		return nil, err
	}

	version := data.Version
	if version == "" {
		version = e.version
	}

	return &WALRecord{
		LogID:      data.LogID,
		Version:    version,
		Operation:  op,
		VectorID:   data.VectorID,
		Vector:     data.Vector,
		Columns:    data.Columns,
		Attributes: data.Attributes,
	}, nil
}

// readNonEmptyLine returns the next non-blank line without its newline
func readNonEmptyLine(reader *bufio.Reader) (string, error) {
	for {
		line, err := reader.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			return trimmed, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// String returns a string representation of the operation
func (op WALOperation) String() string {
	switch op {
	case Insert:
		return "Insert"
	case Delete:
		return "Delete"
	default:
		return fmt.Sprintf("Unknown(%d)", op)
	}
}

// ParseWALOperation accepts the names produced by String, case-insensitively
func ParseWALOperation(s string) (WALOperation, error) {
	switch strings.ToLower(s) {
	case "insert":
		return Insert, nil
	case "delete":
		return Delete, nil
	default:
		return Insert, fmt.Errorf("unknown WAL operation %q", s)
	}
}
