package main

import (
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/canonical/yarf/internal/cv"
	"github.com/canonical/yarf/internal/hid"
)

// The probe subcommands exercise one engine capability each, for smoke
// testing an endpoint before pointing a suite at it.

var captureOut string

var captureCmd = &cobra.Command{
	Use:   "capture [display]",
	Short: "Grab one frame and write it as PNG",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		display := ""
		if len(args) == 1 {
			display = args[0]
		}
		frame, err := s.Capture(display)
		if err != nil {
			return err
		}
		f, err := os.Create(captureOut)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := png.Encode(f, frame.Img); err != nil {
			return err
		}
		fmt.Printf("captured %dx%d frame to %s\n", frame.Width, frame.Height, captureOut)
		return nil
	},
}

var (
	stillTimeout  time.Duration
	stillFor      time.Duration
	stillInterval time.Duration
)

var stillCmd = &cobra.Command{
	Use:   "still [display]",
	Short: "Wait until the screen stops changing",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		display := ""
		if len(args) == 1 {
			display = args[0]
		}
		start := time.Now()
		if err := s.WaitStill(display, stillTimeout, stillFor, stillInterval); err != nil {
			return err
		}
		fmt.Printf("screen still after %.1fs\n", time.Since(start).Seconds())
		return nil
	},
}

var typeCmd = &cobra.Command{
	Use:   "type <text>",
	Short: "Type text on the remote keyboard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.TypeString(args[0])
	},
}

var comboCmd = &cobra.Command{
	Use:   "combo <key> [key...]",
	Short: "Press a key combination, released in reverse order",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.KeysCombo(args...)
	},
}

var clickCmd = &cobra.Command{
	Use:   "click <x> <y>",
	Short: "Walk the pointer to a point and left-click",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var x, y int
		if _, err := fmt.Sscanf(args[0]+" "+args[1], "%d %d", &x, &y); err != nil {
			return fmt.Errorf("coordinates must be integers: %w", err)
		}
		s, err := connect(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.ClickOn(hid.At(x, y))
	},
}

var matchTimeout time.Duration

var matchCmd = &cobra.Command{
	Use:   "match <template>",
	Short: "Wait for a template to appear",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := s.Match(args[0], cv.WithTimeout(matchTimeout))
		if err != nil {
			return err
		}
		fmt.Printf("matched %s at %s (%.1f%%)\n", args[0], result.Region, result.Similarity)
		return nil
	},
}

var textCmd = &cobra.Command{
	Use:   "text <needle>",
	Short: "Wait for text to appear, regex: prefix for patterns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		matches, err := s.MatchText(args[0])
		if err != nil {
			return err
		}
		for _, m := range matches {
			fmt.Printf("%q at %s (%.1f%%)\n", m.Text, m.Region, m.Similarity)
		}
		return nil
	},
}

func init() {
	captureCmd.Flags().StringVarP(&captureOut, "out", "o", "frame.png", "output file")
	stillCmd.Flags().DurationVar(&stillTimeout, "timeout", 30*time.Second, "total wait budget")
	stillCmd.Flags().DurationVar(&stillFor, "for", 2*time.Second, "required still span")
	stillCmd.Flags().DurationVar(&stillInterval, "interval", 200*time.Millisecond, "capture interval")
	matchCmd.Flags().DurationVar(&matchTimeout, "timeout", 10*time.Second, "search deadline")

	rootCmd.AddCommand(captureCmd, stillCmd, typeCmd, comboCmd, clickCmd, matchCmd, textCmd)
}
