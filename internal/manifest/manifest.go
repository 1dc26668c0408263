// Package manifest loads and validates the capture manifest: the ordered
// list of photo records (device orientation plus photo reference) produced
// by the capture device for one mapping session.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// PhotoRecord is one captured photo with the device orientation at capture
// time. Alpha/Beta/Gamma are Euler angles in radians: yaw about Z, pitch
// about X, roll about Y. Records are immutable once loaded.
type PhotoRecord struct {
	Index     int     `json:"index"`
	Timestamp int64   `json:"timestamp"`
	Alpha     float64 `json:"alpha"`
	Beta      float64 `json:"beta"`
	Gamma     float64 `json:"gamma"`
	PhotoURI  string  `json:"photoUri"`
}

// PhotoFilename resolves the record's photo file name inside a photos
// directory. Only the base name of PhotoURI is used; the capture device
// reports device-local URIs whose directories mean nothing here.
func (r PhotoRecord) PhotoFilename(photosDir string) string {
	return filepath.Join(photosDir, filepath.Base(r.PhotoURI))
}

// MaskFilename returns the deterministic mask file name for this record
// inside a masks directory. Masks are keyed by index, not by photo name.
func (r PhotoRecord) MaskFilename(masksDir string) string {
	return filepath.Join(masksDir, fmt.Sprintf("%d.png", r.Index))
}

// Load reads a manifest JSON file and validates every record. Records are
// returned sorted by ascending index, the canonical processing order.
func Load(path string) ([]PhotoRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates manifest JSON.
func Parse(data []byte) ([]PhotoRecord, error) {
	var records []PhotoRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("manifest contains no photo records")
	}
	for i, r := range records {
		if err := validate(r); err != nil {
			return nil, fmt.Errorf("manifest record %d: %w", i, err)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Index < records[j].Index })
	return records, nil
}

// validate rejects records missing required fields up front, rather than
// letting them fail deep inside the projection math.
func validate(r PhotoRecord) error {
	if r.Index < 0 {
		return fmt.Errorf("negative index %d", r.Index)
	}
	if r.PhotoURI == "" {
		return fmt.Errorf("record index %d missing photoUri", r.Index)
	}
	return nil
}
