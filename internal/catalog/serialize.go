package catalog

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// Shard text format: one record per line, comma-separated, fields in fixed
// order (hash, name, size, captured-at, modified-at, width, height,
// source-id). Fields containing the separator are quoted per CSV rules.
// Timestamps are unix seconds; optional fields are empty when unset.
// Records are ordered by hash so serialization is deterministic and the
// shard checksum is stable.

const recordFieldCount = 8

// EncodeShard serializes records as shard entry lines, ordered by hash.
func EncodeShard(recs []*PhotoRecord) ([]byte, error) {
	sorted := make([]*PhotoRecord, len(recs))
	copy(sorted, recs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ContentHash < sorted[j].ContentHash })

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, rec := range sorted {
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		row := []string{
			rec.ContentHash,
			rec.DisplayName,
			strconv.FormatInt(rec.ByteSize, 10),
			encodeTime(rec.CapturedAt),
			encodeTime(rec.ModifiedAt),
			encodeDim(rec.PixelWidth),
			encodeDim(rec.PixelHeight),
			rec.SourceLocalID,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("encoding record %s: %w", rec.ContentHash, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encoding shard: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeShard parses shard entry lines back into records.
func DecodeShard(data []byte) ([]*PhotoRecord, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = recordFieldCount

	var out []*PhotoRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing shard line: %w", err)
		}

		size, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing size for %s: %w", row[0], err)
		}
		captured, err := decodeTime(row[3])
		if err != nil {
			return nil, fmt.Errorf("parsing captured-at for %s: %w", row[0], err)
		}
		modified, err := decodeTime(row[4])
		if err != nil {
			return nil, fmt.Errorf("parsing modified-at for %s: %w", row[0], err)
		}
		width, err := decodeDim(row[5])
		if err != nil {
			return nil, fmt.Errorf("parsing width for %s: %w", row[0], err)
		}
		height, err := decodeDim(row[6])
		if err != nil {
			return nil, fmt.Errorf("parsing height for %s: %w", row[0], err)
		}

		rec := &PhotoRecord{
			ContentHash:   row[0],
			DisplayName:   row[1],
			ByteSize:      size,
			CapturedAt:    captured,
			ModifiedAt:    modified,
			PixelWidth:    width,
			PixelHeight:   height,
			SourceLocalID: row[7],
		}
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Checksum returns the shard content checksum: SHA-256 of the serialized
// entry bytes, hex-encoded.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.Unix(), 10)
}

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}

func encodeDim(d uint32) string {
	if d == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(d), 10)
}

func decodeDim(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	d, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(d), nil
}
