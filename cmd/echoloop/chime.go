package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"echoloop/internal/infra/chime"
)

var chimeCmd = &cobra.Command{
	Use:   "chime [path]",
	Short: "Decode the chime asset and report its length",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path := cfg.Chime.Path
		if len(args) == 1 {
			path = args[0]
		}

		logger := setupLogger(cfg.Log)
		samples, err := chime.NewLoader(cfg.Audio.SampleRate, logger).Load(path)
		if err != nil {
			return err
		}

		d := time.Duration(len(samples)) * time.Second / time.Duration(cfg.Audio.SampleRate)
		blocks := (len(samples) + cfg.Audio.BlockSize - 1) / cfg.Audio.BlockSize
		fmt.Printf("%s: %d samples at %d Hz (%v, %d blocks of %d)\n",
			path, len(samples), cfg.Audio.SampleRate, d, blocks, cfg.Audio.BlockSize)
		return nil
	},
}
