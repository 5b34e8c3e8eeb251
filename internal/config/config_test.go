package config

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validJSON = `{
  "directory": "/data/session1",
  "start_index": 10,
  "end_index": 200,
  "tracking": {"optical_flow": true, "kalman": true, "delta": 10},
  "crops": [
    {
      "name": "hand",
      "area": [100, 50, 300, 250],
      "markers": [
        {"name": "wrist", "pos": [20, 30]},
        {"name": "anchor", "pos": [5, 5], "static": true}
      ],
      "filters": {"min_threshold": 180, "max_threshold": 255, "blur_sigma": 1.5}
    }
  ]
}`

func TestLoadJSON(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "run.json", validJSON))
	require.NoError(t, err)

	assert.Equal(t, "/data/session1", cfg.Directory)
	assert.Equal(t, 10, cfg.StartIndex)
	assert.Equal(t, 200, cfg.EndIndex)

	tc := cfg.TrackConfig()
	assert.False(t, tc.Naive)
	assert.True(t, tc.OpticalFlow)
	assert.True(t, tc.Kalman)
	assert.Equal(t, 10, tc.Delta)

	specs := cfg.CropSpecs()
	require.Len(t, specs, 1)
	assert.Equal(t, image.Rect(100, 50, 300, 250), specs[0].Area)
	require.Len(t, specs[0].Markers, 2)
	assert.Equal(t, "wrist", specs[0].Markers[0].Name)
	assert.Equal(t, 20, specs[0].Markers[0].X)
	assert.True(t, specs[0].Markers[1].Static)

	f := specs[0].Filter
	assert.Equal(t, 180, f.MinThreshold)
	assert.Equal(t, 255, f.MaxThreshold)
	assert.Equal(t, 1.5, f.BlurSigma)
	// Omitted fields keep the defaults.
	assert.Equal(t, 1, f.MinArea)
	assert.Equal(t, 5000, f.MaxArea)

	conv, err := cfg.Converter()
	require.NoError(t, err)
	assert.Nil(t, conv)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "run.yaml", `
directory: /data/session2
start_index: 0
end_index: 50
tracking:
  naive: true
crops:
  - name: leg
    area: [0, 0, 640, 480]
    markers:
      - name: knee
        pos: [320, 240]
camera:
  width: 640
  height: 480
  fx: 600
  fy: 600
  ppx: 320
  ppy: 240
  model: brown_conrady
`))
	require.NoError(t, err)

	assert.Equal(t, "/data/session2", cfg.Directory)
	assert.True(t, cfg.TrackConfig().Naive)

	conv, err := cfg.Converter()
	require.NoError(t, err)
	require.NotNil(t, conv)
}

func TestLoadRejections(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"missing directory": `{"start_index": 0, "end_index": 10,
			"crops": [{"name": "a", "area": [0,0,10,10], "markers": [{"name": "m"}]}]}`,
		"empty frame range": `{"directory": "/d", "start_index": 5, "end_index": 5,
			"crops": [{"name": "a", "area": [0,0,10,10], "markers": [{"name": "m"}]}]}`,
		"no crops": `{"directory": "/d", "start_index": 0, "end_index": 10, "crops": []}`,
		"crop without markers": `{"directory": "/d", "start_index": 0, "end_index": 10,
			"crops": [{"name": "a", "area": [0,0,10,10], "markers": []}]}`,
		"degenerate area": `{"directory": "/d", "start_index": 0, "end_index": 10,
			"crops": [{"name": "a", "area": [10,0,10,10], "markers": [{"name": "m"}]}]}`,
		"inverted thresholds": `{"directory": "/d", "start_index": 0, "end_index": 10,
			"crops": [{"name": "a", "area": [0,0,10,10], "markers": [{"name": "m"}],
			"filters": {"min_threshold": 200, "max_threshold": 100}}]}`,
	}
	for name, content := range cases {
		content := content
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, "bad.json", content))
			assert.Error(t, err)
		})
	}

	t.Run("unreadable file", func(t *testing.T) {
		t.Parallel()
		_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()
		_, err := Load(writeConfig(t, "bad.yaml", "directory: [unclosed"))
		assert.Error(t, err)
	})
}
