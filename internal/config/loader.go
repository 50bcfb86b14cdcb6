package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// LoadFromINI loads configuration from an engine settings file, applying
// defaults for anything not present.
//
// Example:
//
//	[server]
//	host = 10.0.4.2
//	display = 1
//
//	[match]
//	tolerance = 85
//	method = ncc
//
//	[displays]
//	specs = primary:1920x1080 sidebar:600x1080+1920+0
func LoadFromINI(path string) (*Config, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := DefaultConfig()

	server := cfg.Section("server")
	config.Server.Host = server.Key("host").MustString(config.Server.Host)
	config.Server.Display = server.Key("display").MustInt(config.Server.Display)
	config.Server.Port = server.Key("port").MustInt(0)
	config.Server.ConnectTimeout = msKey(server, "connect_timeout_ms", config.Server.ConnectTimeout)
	config.Server.CallTimeout = msKey(server, "call_timeout_ms", config.Server.CallTimeout)

	match := cfg.Section("match")
	config.Match.Tolerance = match.Key("tolerance").MustFloat64(config.Match.Tolerance)
	config.Match.Method = match.Key("method").MustString(config.Match.Method)
	config.Match.Timeout = msKey(match, "timeout_ms", config.Match.Timeout)
	config.Match.Interval = msKey(match, "interval_ms", config.Match.Interval)
	config.Match.TextSimilarity = match.Key("text_similarity").MustFloat64(config.Match.TextSimilarity)

	ocr := cfg.Section("ocr")
	config.OCR.Backend = ocr.Key("backend").MustString(config.OCR.Backend)
	config.OCR.TesseractPath = ocr.Key("tesseract_path").MustString("")

	pointer := cfg.Section("pointer")
	config.Pointer.WalkSteps = pointer.Key("walk_steps").MustInt(config.Pointer.WalkSteps)
	config.Pointer.WalkInterval = msKey(pointer, "walk_interval_ms", config.Pointer.WalkInterval)

	logging := cfg.Section("logging")
	config.Logging.Level = logging.Key("level").MustString(config.Logging.Level)
	config.Logging.File = logging.Key("file").MustString("")

	if specs := cfg.Section("displays").Key("specs").MustString(""); specs != "" {
		for _, raw := range strings.Fields(specs) {
			spec, err := ParseDisplaySpec(raw)
			if err != nil {
				return nil, err
			}
			config.Displays = append(config.Displays, spec)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func msKey(section *ini.Section, key string, fallback time.Duration) time.Duration {
	ms := section.Key(key).MustInt(int(fallback / time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}
