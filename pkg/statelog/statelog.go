// Package statelog writes the two on-disk log formats a running
// netserver/netclient process keeps for post-mortem debugging: a
// structured, column-typed CSV (one row per tick) and a free-form
// timestamped text log. Grounded on original StructuredLogFile.{h,cpp}'s
// column/header/per-line shape and TimestampedLogFile's relative-seconds
// line format, reimplemented around encoding/csv instead of a raw
// Win32 file handle.
package statelog

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"
)

// ColumnType is one column's storage kind, mirroring the original
// LogFileColumnType enum.
type ColumnType int

const (
	UInt32 ColumnType = iota
	UInt64
	Float
	Enum
)

// Column describes one column of a StructuredLog. Symbols is only
// consulted for Enum columns: the value recorded for that column is an
// index into Symbols.
type Column struct {
	Name    string
	Type    ColumnType
	Symbols []string
}

// StructuredLog writes one CSV row per FlushLine call, with a header row
// naming each column and its type as "name:Type" (spec's supplemented counterpart to the original's
// WriteHeaderLine).
type StructuredLog struct {
	file    *os.File
	w       *csv.Writer
	columns []Column
	pending []uint64
}

// Open creates (or truncates) path and writes its header row.
func Open(path string, columns []Column) (*StructuredLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("statelog: open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	typeNames := map[ColumnType]string{UInt32: "UInt32", UInt64: "UInt64", Float: "Float", Enum: "Enum"}
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Name + ":" + typeNames[c.Type]
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("statelog: write header: %w", err)
	}
	return &StructuredLog{file: f, w: w, columns: columns, pending: make([]uint64, len(columns))}, nil
}

// SetUInt32 stages a UInt32-column value for the next FlushLine.
func (s *StructuredLog) SetUInt32(col int, v uint32) { s.pending[col] = uint64(v) }

// SetUInt64 stages a UInt64-column value for the next FlushLine.
func (s *StructuredLog) SetUInt64(col int, v uint64) { s.pending[col] = v }

// SetFloat stages a Float-column value for the next FlushLine.
func (s *StructuredLog) SetFloat(col int, v float32) { s.pending[col] = uint64(math.Float32bits(v)) }

// SetEnum stages an Enum-column value (an index into that column's
// Symbols) for the next FlushLine.
func (s *StructuredLog) SetEnum(col int, symbolIndex int) { s.pending[col] = uint64(symbolIndex) }

// FlushLine renders the staged values as one CSV row and resets the
// staging buffer to zero.
func (s *StructuredLog) FlushLine() error {
	row := make([]string, len(s.columns))
	for i, c := range s.columns {
		row[i] = formatColumn(c, s.pending[i])
	}
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("statelog: write row: %w", err)
	}
	s.w.Flush()
	for i := range s.pending {
		s.pending[i] = 0
	}
	return s.w.Error()
}

func formatColumn(c Column, raw uint64) string {
	switch c.Type {
	case UInt32:
		return strconv.FormatUint(raw, 10)
	case UInt64:
		return strconv.FormatUint(raw, 10)
	case Float:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(raw))), 'f', -1, 32)
	case Enum:
		if int(raw) < len(c.Symbols) {
			return c.Symbols[raw]
		}
		return strconv.FormatUint(raw, 10)
	default:
		return ""
	}
}

// Close flushes and closes the underlying file.
func (s *StructuredLog) Close() error {
	s.w.Flush()
	return s.file.Close()
}

// Rotator owns a StructuredLog and knows how to replace it with a fresh
// file on demand, so a long-running process's frame log doesn't grow
// without bound (internal/logrotate drives this on a schedule).
type Rotator struct {
	path    string
	columns []Column
	current *StructuredLog
}

// NewRotator opens the first file at path.
func NewRotator(path string, columns []Column) (*Rotator, error) {
	log, err := Open(path, columns)
	if err != nil {
		return nil, err
	}
	return &Rotator{path: path, columns: columns, current: log}, nil
}

// Current returns the active StructuredLog.
func (r *Rotator) Current() *StructuredLog { return r.current }

// Rotate closes the current file, renames it aside with a timestamp
// suffix, and opens a fresh file at the original path.
func (r *Rotator) Rotate() error {
	if err := r.current.Close(); err != nil {
		return fmt.Errorf("statelog: close before rotate: %w", err)
	}
	archived := fmt.Sprintf("%s.%d", r.path, time.Now().Unix())
	if err := os.Rename(r.path, archived); err != nil {
		return fmt.Errorf("statelog: archive %s: %w", r.path, err)
	}
	fresh, err := Open(r.path, r.columns)
	if err != nil {
		return fmt.Errorf("statelog: reopen after rotate: %w", err)
	}
	r.current = fresh
	return nil
}

// Close closes the active file.
func (r *Rotator) Close() error { return r.current.Close() }

// TimestampedLog writes free-form lines prefixed with a relative-seconds
// timestamp, the Go counterpart to the original TimestampedLogFile.
type TimestampedLog struct {
	file  *os.File
	start time.Time
}

// OpenTimestamped creates (or truncates) path for timestamped lines.
func OpenTimestamped(path string) (*TimestampedLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("statelog: open %s: %w", path, err)
	}
	return &TimestampedLog{file: f, start: time.Now()}, nil
}

// WriteLine writes one line prefixed with the seconds elapsed since Open,
// in the form "%8.3f: message". No bracketed tick-counter field is
// written between the seconds and the message.
func (t *TimestampedLog) WriteLine(format string, args ...interface{}) error {
	elapsed := time.Since(t.start).Seconds()
	line := fmt.Sprintf("%8.3f: %s\n", elapsed, fmt.Sprintf(format, args...))
	_, err := t.file.WriteString(line)
	return err
}

// Close closes the underlying file.
func (t *TimestampedLog) Close() error { return t.file.Close() }
