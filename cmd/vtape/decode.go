package main

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newDecodeCmd(opts *rootOptions) *cobra.Command {
	var (
		flags    codecFlags
		input    string
		output   string
		password string
	)

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Recover the original file from a video container",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, opts, &flags)
			if err != nil {
				return err
			}
			rt, err := newRuntime(opts, cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			bar := newChunkBar("decoding")
			codec := rt.newCodec(cfg, bar.update)

			res, err := codec.Decode(context.Background(), input, output, password)
			if err != nil {
				return err
			}
			bar.finish()

			color.Green("decoded %s (%s, %d chunks) in %s",
				output, humanize.Bytes(uint64(res.Bytes)), res.Chunks, res.Duration.Round(timeUnit))
			rt.logger.WithField("sha256", res.SHA256).Info("decoded hash")
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&input, "input", "", "video container to decode")
	fl.StringVar(&output, "output", "", "destination file")
	fl.StringVar(&password, "password", "", "password the stream was encoded with")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	addCodecFlags(cmd, &flags, false)
	return cmd
}
