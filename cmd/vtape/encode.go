package main

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newEncodeCmd(opts *rootOptions) *cobra.Command {
	var (
		flags    codecFlags
		input    string
		output   string
		password string
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a file into a lossless video container",
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

			bar := newChunkBar("encoding")
			codec := rt.newCodec(cfg, bar.update)

			res, err := codec.Encode(context.Background(), input, output, password)
			if err != nil {
				return err
			}
			bar.finish()

			color.Green("encoded %s (%s) into %d frames across %d chunks in %s",
				input, humanize.Bytes(uint64(res.Bytes)), res.Frames, res.Chunks, res.Duration.Round(timeUnit))
			rt.logger.WithField("file_id", res.FileID).Info("keep the password safe; the file ID travels inside the stream")
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&input, "input", "", "source file")
	fl.StringVar(&output, "output", "", "destination container (MKV)")
	fl.StringVar(&password, "password", "", "encrypt chunks with this password")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	addCodecFlags(cmd, &flags, true)
	return cmd
}

// chunkBar wraps the progress bar so the pipeline callback can lazily size
// it once the chunk total is known.
type chunkBar struct {
	desc string
	bar  *progressbar.ProgressBar
}

func newChunkBar(desc string) *chunkBar {
	return &chunkBar{desc: desc}
}

func (b *chunkBar) update(_ string, done, total int64) {
	if b.bar == nil {
		b.bar = progressbar.NewOptions64(total,
			progressbar.OptionSetDescription(b.desc),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = b.bar.Set64(done)
}

func (b *chunkBar) finish() {
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}
