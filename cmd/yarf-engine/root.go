package main

import (
	"github.com/spf13/cobra"

	"github.com/canonical/yarf/internal/config"
	"github.com/canonical/yarf/internal/logging"
	"github.com/canonical/yarf/internal/session"
)

var (
	cfgFile      string
	flagHost     string
	flagDisplay  int
	flagPort     int
	flagLogLevel string
	flagLogFile  string
	templateDir  string
)

var rootCmd = &cobra.Command{
	Use:           "yarf-engine",
	Short:         "Visual matching and synthetic input against a remote display",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logging.Initialize(logging.Options{
			Level:   cfg.Logging.Level,
			LogFile: cfg.Logging.File,
		})
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "engine settings file (INI)")
	pf.StringVar(&flagHost, "host", "", "remote display host")
	pf.IntVar(&flagDisplay, "display", -1, "VNC display number")
	pf.IntVar(&flagPort, "port", 0, "explicit port, overrides the display number")
	pf.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&flagLogFile, "log-file", "", "mirror log entries to a JSON file")
	pf.StringVar(&templateDir, "templates", "templates", "template image directory")
}

// loadConfig reads the settings file when given and layers the command
// line flags over it.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if cfgFile != "" {
		loaded, err := config.LoadFromINI(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if flagHost != "" {
		cfg.Server.Host = flagHost
	}
	if flagDisplay >= 0 {
		cfg.Server.Display = flagDisplay
	}
	if flagPort != 0 {
		cfg.Server.Port = flagPort
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	if flagLogFile != "" {
		cfg.Logging.File = flagLogFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// connect builds a session from the effective configuration.
func connect(cmd *cobra.Command) (*session.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return session.New(cmd.Context(), cfg, session.Options{TemplateDir: templateDir})
}
