package main

import (
	"context"
	"os"
	"strconv"

	"codeberg.org/mutker/stepperctl/internal/archive"
	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/logger"
	"codeberg.org/mutker/stepperctl/internal/telemetry"
	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	var (
		out      string
		maxBytes int
	)

	cmd := &cobra.Command{
		Use:   "export <dataset-id>",
		Short: "Write an archived dataset as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.New().WithData(errors.ErrInvalidArgument, args[0])
			}

			return export(id, out, maxBytes)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().IntVar(&maxBytes, "max-bytes", 0, "Truncate the sample list so the document fits in this many bytes")

	return cmd
}

func export(id int64, out string, maxBytes int) error {
	errFactory := errors.New()

	if !cfg.Archive.Enabled {
		return errFactory.New(archive.ErrArchiveDisabled)
	}

	// stdout carries the document
	log := logger.Nop()
	if out != "" {
		log = logger.Default().With("archive")
	}

	repo, err := archive.New(cfg.ArchiveSettings(), log)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer repo.Close()

	ds, err := repo.Load(context.Background(), id)
	if err != nil {
		return errFactory.Wrap(errors.ErrExportFailed, err)
	}

	if maxBytes <= 0 {
		if out == "" {
			return telemetry.WriteJSON(os.Stdout, ds)
		}

		return writeDataSetFile(out, ds)
	}

	buf := make([]byte, maxBytes)
	n, err := telemetry.ExportJSON(ds, buf)
	if err != nil {
		return errFactory.Wrap(errors.ErrExportFailed, err)
	}

	w := os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return errFactory.Wrap(errors.ErrExportFailed, err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(buf[:n]); err != nil {
		return errFactory.Wrap(errors.ErrExportFailed, err)
	}

	log.Debug().Int64("dataset", id).Int("bytes", n).Msg("Dataset exported")

	return nil
}
