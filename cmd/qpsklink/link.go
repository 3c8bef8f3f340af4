package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"QPSKLink/internel/config"
	"QPSKLink/internel/packet"
	"QPSKLink/pkg/layers"
)

func (a *app) newLink() (*layers.Link, error) {
	t, err := a.newTransmitter()
	if err != nil {
		return nil, err
	}
	return layers.NewLink(t, config.LinkConfig(a.cfg), a.log)
}

func (a *app) printReport(r layers.Report) {
	fmt.Fprintf(a.out, " Frames: %d (groups %d)\n CRC failures: %d\n Misplaced: %d\n Recovered: %d\n Unrecoverable: %d\n Channel bit errors: %d\n",
		r.Frames, r.Groups, r.CRCFailures, r.Misplaced, r.Recovered, r.Unrecoverable, r.BitErrors)
}

func newFileCmd(a *app) *cobra.Command {
	var output string
	var parity int

	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Send a file through the framed link with CRC8 and Reed-Solomon parity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("parity") {
				a.cfg.Link.ParityShards = parity
				if err := a.cfg.Validate(); err != nil {
					return err
				}
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			link, err := a.newLink()
			if err != nil {
				return err
			}

			received, report, err := link.Send(cmd.Context(), data)
			if err != nil {
				return err
			}
			if output != "" {
				if err := os.WriteFile(output, received, 0o644); err != nil {
					return err
				}
			}

			fmt.Fprintf(a.out, "RESULTS:\n Equal: %v\n Bytes: %d\n", bytes.Equal(data, received), len(data))
			a.printReport(report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the received bytes to this file")
	cmd.Flags().IntVar(&parity, "parity", 0, "parity frames per group, 0 disables Reed-Solomon")
	return cmd
}

func newPacketCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "packet [message]",
		Short: "Send an IPv4/UDP datagram through the framed link and decode what arrives",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := "hello over qpsk"
			if len(args) == 1 {
				message = args[0]
			}

			src, err := packet.ParseEndpoint(a.cfg.Packet.SrcIP, a.cfg.Packet.SrcPort)
			if err != nil {
				return err
			}
			dst, err := packet.ParseEndpoint(a.cfg.Packet.DstIP, a.cfg.Packet.DstPort)
			if err != nil {
				return err
			}
			datagram, err := packet.BuildUDP(src, dst, []byte(message))
			if err != nil {
				return err
			}

			link, err := a.newLink()
			if err != nil {
				return err
			}
			received, report, err := link.Send(cmd.Context(), datagram)
			if err != nil {
				return err
			}

			d, err := packet.DecodeIPv4(received)
			if err != nil {
				fmt.Fprintf(a.out, "RESULTS:\n Decoded: false (%v, layers %v)\n", err, d.Layers)
				a.printReport(report)
				return nil
			}
			fmt.Fprintf(a.out, "RESULTS:\n Decoded: true\n %s:%d -> %s:%d\n Payload: %q\n Checksum valid: %v\n Layers: %v\n",
				d.Src.IP, d.Src.Port, d.Dst.IP, d.Dst.Port, d.Payload, d.ChecksumValid, d.Layers)
			if d.DecodeErr != nil {
				fmt.Fprintf(a.out, " Decode error: %v\n", d.DecodeErr)
			}
			a.printReport(report)
			return nil
		},
	}
}
