package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingFileUsesDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "swerve.json"))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:80", f.RadioAddress())
	assert.Equal(t, 30*time.Second, f.StartupTimeout())
	assert.Equal(t, 500*time.Millisecond, f.IndicatorInterval())
	assert.Equal(t, "", f.RecheckCron())
	assert.False(t, f.AllowNonRootAccess())

	v := f.Vision()
	assert.Equal(t, []float64{0.50, 1.00, 1.50}, v.Distances)
	assert.Equal(t, 3, v.Degree)
	assert.True(t, v.ReduceDegree)

	m, err := v.NoiseModel()
	require.NoError(t, err)
	assert.InDelta(t, 0.020, m.StdDevs(1.0).XY, 1e-9)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swerve.json")
	f, err := NewFile(path)
	require.NoError(t, err)

	f.SetRadioAddress("10.42.1.1:80")
	f.SetStartupTimeout(12 * time.Second)
	f.SetIndicatorInterval(250 * time.Millisecond)
	f.SetRecheckCron("@every 10m")
	f.SetAllowNonRootAccess(true)
	f.SetVision(VisionConfig{
		Distances:    []float64{1, 2, 3, 4},
		XYStdDevs:    []float64{0.1, 0.2, 0.3, 0.4},
		ThetaStdDevs: []float64{0.2, 0.3, 0.4, 0.5},
		Degree:       2,
	})
	require.NoError(t, f.Save())

	g, err := NewFile(path)
	require.NoError(t, err)
	assert.Equal(t, "10.42.1.1:80", g.RadioAddress())
	assert.Equal(t, 12*time.Second, g.StartupTimeout())
	assert.Equal(t, 250*time.Millisecond, g.IndicatorInterval())
	assert.Equal(t, "@every 10m", g.RecheckCron())
	assert.True(t, g.AllowNonRootAccess())
	assert.Equal(t, 2, g.Vision().Degree)
	assert.False(t, g.Vision().ReduceDegree)

	fields := g.LogrusFields()
	assert.Equal(t, 4, fields["visionSamples"])
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad json", content: `{"radioAddress":`},
		{name: "negative timeout", content: `{"startupTimeoutSeconds": -1}`},
		{name: "zero interval", content: `{"indicatorIntervalMillis": 0}`},
		{name: "bad cron", content: `{"recheckCron": "every now and then"}`},
		{name: "mismatched tables", content: `{"vision": {"distances": [1, 2], "xyStdDevs": [0.1], "thetaStdDevs": [0.1, 0.2], "degree": 1}}`},
		{name: "distances without tables", content: `{"vision": {"distances": [1, 2]}}`},
		{name: "duplicate distances", content: `{"vision": {"distances": [1, 1, 2], "xyStdDevs": [0.1, 0.2, 0.3], "thetaStdDevs": [0.1, 0.2, 0.3], "degree": 1}}`},
		{name: "strict fit with too few samples", content: `{"vision": {"reduceDegree": false}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "swerve.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := NewFile(path)
			assert.Error(t, err)
		})
	}
}

func TestPartialVisionSection(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		degree     int
		wantDegree int
	}{
		{
			name:       "shipped tables without reduceDegree",
			content:    `{"vision": {"distances": [0.5, 1.0, 1.5], "xyStdDevs": [0.014, 0.020, 0.150], "thetaStdDevs": [0.115, 0.149, 0.190], "degree": 3}}`,
			degree:     3,
			wantDegree: 2,
		},
		{
			name:       "degree only",
			content:    `{"vision": {"degree": 1}}`,
			degree:     1,
			wantDegree: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "swerve.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			f, err := NewFile(path)
			require.NoError(t, err)

			v := f.Vision()
			assert.True(t, v.ReduceDegree)
			assert.Equal(t, tt.degree, v.Degree)
			assert.Equal(t, []float64{0.50, 1.00, 1.50}, v.Distances)

			m, err := v.NoiseModel()
			require.NoError(t, err)
			assert.Equal(t, tt.wantDegree, m.Info().XY.Degree)
		})
	}
}

func TestEmptyFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swerve.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0644))

	f, err := NewFile(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, f.StartupTimeout())
}

func TestVisionIsACopy(t *testing.T) {
	f := NewFileFromConfig(nil, "")
	v := f.Vision()
	v.Distances[0] = 99
	assert.Equal(t, 0.50, f.Vision().Distances[0])

	raw, err := NewRawFileConfigFromConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 30.0, *raw.StartupTimeoutSeconds)
	assert.Equal(t, 500, *raw.IndicatorIntervalMillis)

	_, err = NewRawFileConfigFromConfig(nil)
	assert.Error(t, err)
}
