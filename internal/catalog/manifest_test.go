package catalog

import (
	"errors"
	"testing"
	"time"
)

func TestManifest_EncodeParseRoundTrip(t *testing.T) {
	m := NewManifest()
	m.LastSyncedAt = time.Unix(1700000000, 0).UTC()
	m.SetChecksum(3, "deadbeef")
	m.SetChecksum(15, "cafef00d")

	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := ParseManifest(data)
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	if got.Checksum(3) != "deadbeef" {
		t.Errorf("Checksum(3) = %q, want %q", got.Checksum(3), "deadbeef")
	}
	if got.Checksum(15) != "cafef00d" {
		t.Errorf("Checksum(15) = %q, want %q", got.Checksum(15), "cafef00d")
	}
	if !got.LastSyncedAt.Equal(m.LastSyncedAt) {
		t.Errorf("LastSyncedAt = %v, want %v", got.LastSyncedAt, m.LastSyncedAt)
	}
}

func TestParseManifest_RejectsUnknownVersion(t *testing.T) {
	_, err := ParseManifest([]byte(`{"format_version": 99, "shard_checksums": {}}`))
	if !errors.Is(err, ErrUnknownManifestVersion) {
		t.Errorf("ParseManifest() error = %v, want ErrUnknownManifestVersion", err)
	}
}

func TestParseManifest_RejectsGarbage(t *testing.T) {
	if _, err := ParseManifest([]byte("not json")); err == nil {
		t.Error("ParseManifest() error = nil, want error")
	}
}

func TestManifest_ChangedShards(t *testing.T) {
	base := NewManifest()
	base.SetChecksum(2, "aaa")
	base.SetChecksum(5, "bbb")

	tests := []struct {
		name  string
		other func() *Manifest
		want  []int
	}{
		{
			name:  "identical manifests",
			other: func() *Manifest { m := NewManifest(); m.SetChecksum(2, "aaa"); m.SetChecksum(5, "bbb"); return m },
			want:  nil,
		},
		{
			name:  "one shard changed",
			other: func() *Manifest { m := NewManifest(); m.SetChecksum(2, "aaa"); m.SetChecksum(5, "CHANGED"); return m },
			want:  []int{5},
		},
		{
			name:  "shard only in base",
			other: func() *Manifest { m := NewManifest(); m.SetChecksum(2, "aaa"); return m },
			want:  []int{5},
		},
		{
			name:  "nil other lists every populated shard",
			other: func() *Manifest { return nil },
			want:  []int{2, 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := base.ChangedShards(tt.other())
			if len(got) != len(tt.want) {
				t.Fatalf("ChangedShards() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("ChangedShards() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestManifestFor_MatchesSavedShards(t *testing.T) {
	s := NewStore()
	s.Upsert(testRecord(hashWithPrefix('4')))

	m, err := ManifestFor(s, time.Unix(1700000000, 0).UTC())
	if err != nil {
		t.Fatalf("ManifestFor() error = %v", err)
	}

	recs, _ := s.ShardRecords(4)
	data, _ := EncodeShard(recs)
	if m.Checksum(4) != Checksum(data) {
		t.Error("manifest checksum does not match encoded shard")
	}
	// Untouched shards report the empty checksum and are not listed.
	if len(m.ShardChecksums) != 1 {
		t.Errorf("ShardChecksums len = %d, want 1", len(m.ShardChecksums))
	}
}
