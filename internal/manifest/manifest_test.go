package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSortsByIndex(t *testing.T) {
	data := []byte(`[
		{"index": 2, "timestamp": 300, "alpha": 0.1, "beta": 0.2, "gamma": 0.3, "photoUri": "file:///photos/c.jpg"},
		{"index": 0, "timestamp": 100, "alpha": 0, "beta": 0, "gamma": 0, "photoUri": "file:///photos/a.jpg"},
		{"index": 1, "timestamp": 200, "alpha": 0.5, "beta": -0.1, "gamma": 0, "photoUri": "file:///photos/b.jpg"}
	]`)

	records, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, records, 3)

	for i, r := range records {
		assert.Equal(t, i, r.Index)
	}
	assert.Equal(t, 0.5, records[1].Alpha)
	assert.Equal(t, "file:///photos/b.jpg", records[1].PhotoURI)
}

func TestParseRejectsEmptyManifest(t *testing.T) {
	_, err := Parse([]byte(`[]`))
	assert.Error(t, err)
}

func TestParseRejectsMissingPhotoURI(t *testing.T) {
	data := []byte(`[{"index": 0, "timestamp": 100, "alpha": 0, "beta": 0, "gamma": 0, "photoUri": ""}]`)
	_, err := Parse(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "photoUri")
}

func TestParseRejectsNegativeIndex(t *testing.T) {
	data := []byte(`[{"index": -1, "timestamp": 100, "alpha": 0, "beta": 0, "gamma": 0, "photoUri": "a.jpg"}]`)
	_, err := Parse(data)
	assert.Error(t, err)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"not": "an array"`))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotation.json")
	data := []byte(`[{"index": 7, "timestamp": 42, "alpha": 1.5, "beta": 0.25, "gamma": -0.5, "photoUri": "file:///DCIM/IMG_0007.jpg"}]`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 7, records[0].Index)
	assert.Equal(t, int64(42), records[0].Timestamp)
}

func TestFilenames(t *testing.T) {
	r := PhotoRecord{Index: 12, PhotoURI: "file:///device/DCIM/IMG_0012.jpg"}
	assert.Equal(t, filepath.Join("/p", "IMG_0012.jpg"), r.PhotoFilename("/p"))
	assert.Equal(t, filepath.Join("/m", "12.png"), r.MaskFilename("/m"))
}
