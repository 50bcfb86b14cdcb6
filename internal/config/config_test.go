package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/yarf/internal/fault"
)

func TestEndpointFromDisplayNumber(t *testing.T) {
	s := ServerConfig{Host: "10.0.4.2", Display: 1}
	assert.Equal(t, "10.0.4.2:5901", s.Endpoint())

	s.Port = 6000
	assert.Equal(t, "10.0.4.2:6000", s.Endpoint())
}

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateClosedSets(t *testing.T) {
	var cfg *fault.ConfigurationError

	c := DefaultConfig()
	c.Match.Method = "template"
	require.ErrorAs(t, c.Validate(), &cfg)

	c = DefaultConfig()
	c.OCR.Backend = "easyocr"
	require.ErrorAs(t, c.Validate(), &cfg)

	c = DefaultConfig()
	c.Match.Tolerance = 120
	require.ErrorAs(t, c.Validate(), &cfg)
}

func TestValidateDisplays(t *testing.T) {
	var cfg *fault.ConfigurationError

	c := DefaultConfig()
	c.Displays = []DisplaySpec{
		{Name: "main", Width: 1920, Height: 1080},
		{Name: "main", Width: 800, Height: 600},
	}
	require.ErrorAs(t, c.Validate(), &cfg)

	c = DefaultConfig()
	c.Displays = []DisplaySpec{{Name: "main", Width: 0, Height: 1080}}
	require.ErrorAs(t, c.Validate(), &cfg)
}

func TestParseDisplaySpec(t *testing.T) {
	spec, err := ParseDisplaySpec("primary:1920x1080")
	require.NoError(t, err)
	assert.Equal(t, DisplaySpec{Name: "primary", Width: 1920, Height: 1080}, spec)

	spec, err = ParseDisplaySpec("sidebar:600x1080+1920+0")
	require.NoError(t, err)
	assert.Equal(t, DisplaySpec{Name: "sidebar", Width: 600, Height: 1080, OffsetX: 1920}, spec)

	for _, bad := range []string{"", "whoops", "main:axb", "main:100x", "100x100+5"} {
		_, err := ParseDisplaySpec(bad)
		var cfg *fault.ConfigurationError
		require.ErrorAs(t, err, &cfg, bad)
	}
}

func TestLoadFromINI(t *testing.T) {
	content := `
[server]
host = 10.0.4.2
display = 1
call_timeout_ms = 3000

[match]
tolerance = 85
method = ncc
timeout_ms = 20000

[ocr]
backend = gosseract

[pointer]
walk_steps = 30

[displays]
specs = primary:1920x1080 sidebar:600x1080+1920+0
`
	path := filepath.Join(t.TempDir(), "engine.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromINI(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.4.2:5901", cfg.Server.Endpoint())
	assert.Equal(t, 3*time.Second, cfg.Server.CallTimeout)
	assert.Equal(t, 85.0, cfg.Match.Tolerance)
	assert.Equal(t, MethodNCC, cfg.Match.Method)
	assert.Equal(t, 20*time.Second, cfg.Match.Timeout)
	// Unspecified keys keep their defaults.
	assert.Equal(t, 500*time.Millisecond, cfg.Match.Interval)
	assert.Equal(t, OCRGosseract, cfg.OCR.Backend)
	assert.Equal(t, 30, cfg.Pointer.WalkSteps)
	require.Len(t, cfg.Displays, 2)
	assert.Equal(t, "sidebar", cfg.Displays[1].Name)
}

func TestLoadFromINIRejectsBadMethod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.ini")
	require.NoError(t, os.WriteFile(path, []byte("[match]\nmethod = orb\n"), 0o644))

	_, err := LoadFromINI(path)
	var cfg *fault.ConfigurationError
	require.ErrorAs(t, err, &cfg)
}

func TestLoadFromINIMissingFile(t *testing.T) {
	_, err := LoadFromINI(filepath.Join(t.TempDir(), "nope.ini"))
	require.Error(t, err)
}
