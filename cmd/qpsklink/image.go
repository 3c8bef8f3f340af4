package main

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"QPSKLink/internel/imageio"
	"QPSKLink/pkg/modem"
)

func newImageCmd(a *app) *cobra.Command {
	var inputDir, outputDir string

	cmd := &cobra.Command{
		Use:   "image [name]",
		Short: "Send an image through the channel and save the reconstruction",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("input-dir") {
				a.cfg.Image.InputDir = inputDir
			}
			if cmd.Flags().Changed("output-dir") {
				a.cfg.Image.OutputDir = outputDir
			}
			name := a.cfg.Image.Name
			if len(args) == 1 {
				name = args[0]
			}

			fmt.Fprintln(a.out, "-- START --")
			if err := a.sendImage(cmd, name); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "-- FINISHED --")
			return nil
		},
	}
	cmd.Flags().StringVar(&inputDir, "input-dir", "", "directory holding the input image")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for the reconstructed image")
	return cmd
}

func (a *app) sendImage(cmd *cobra.Command, filename string) error {
	fmt.Fprintln(a.out, "Transmitting image", filename, "via QPSK")

	t, err := a.newTransmitter()
	if err != nil {
		return err
	}

	img, err := imageio.Load(filepath.Join(a.cfg.Image.InputDir, filename))
	if err != nil {
		return err
	}
	inputImage, shape := imageio.Flatten(img)
	a.log.Info().Str("image", filename).Stringer("shape", shape).Float64("snr", t.SNR()).Msg("transmitting")

	received, err := t.TransmitByteArrayContext(cmd.Context(), inputImage)
	if err != nil {
		return err
	}
	outputImage, err := imageio.Reshape(received, shape)
	if err != nil {
		return err
	}

	outputPath := filepath.Join(a.cfg.Image.OutputDir, "reconstructed_"+filename)
	if filepath.Ext(outputPath) != ".png" {
		outputPath += ".png"
	}
	if err := imageio.SavePNG(outputPath, outputImage); err != nil {
		return err
	}

	byteErrors := 0
	for i := range inputImage {
		if inputImage[i] != received[i] {
			byteErrors++
		}
	}
	fmt.Fprintf(a.out, "RESULTS:\n Equal: %v\n Byte errors: %d/%d\n Bit errors: %d/%d\n Saved: %s\n",
		bytes.Equal(inputImage, received),
		byteErrors, len(inputImage),
		modem.CountBitErrors(inputImage, received), 8*len(inputImage),
		outputPath,
	)
	return nil
}
