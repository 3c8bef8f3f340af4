package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"QPSKLink/pkg/modem"
)

func newByteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "byte <0-255>",
		Short: "Send a single byte",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			v, err := strconv.ParseUint(args[0], 0, 8)
			if err != nil {
				return fmt.Errorf("%q is not a byte: %w", args[0], err)
			}
			t, err := a.newTransmitter()
			if err != nil {
				return err
			}
			out := t.TransmitByte(byte(v))
			fmt.Fprintf(a.out, "sent %d received %d equal %v\n", v, out, byte(v) == out)
			return nil
		},
	}
}

func newBitsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bits <bitstring>",
		Short: "Send a bitstream such as 1001 (even number of bits)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			bits, err := parseBits(args[0])
			if err != nil {
				return err
			}
			t, err := a.newTransmitter()
			if err != nil {
				return err
			}
			out, err := t.TransmitBitstream(bits)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "sent     %s\nreceived %s\nequal %v\n", formatBits(bits), formatBits(out), bytes.Equal(bits, out))
			return nil
		},
	}
}

func newBytesCmd(a *app) *cobra.Command {
	var isHex bool

	cmd := &cobra.Command{
		Use:   "bytes <text>",
		Short: "Send a byte array given as text or hex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := []byte(args[0])
			if isHex {
				var err error
				if data, err = hex.DecodeString(args[0]); err != nil {
					return err
				}
			}
			t, err := a.newTransmitter()
			if err != nil {
				return err
			}
			out, err := t.TransmitByteArrayContext(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "sent     %x\nreceived %x\nequal %v bit errors %d\n", data, out, bytes.Equal(data, out), modem.CountBitErrors(data, out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&isHex, "hex", false, "the argument is hex encoded")
	return cmd
}

func parseBits(s string) ([]uint8, error) {
	s = strings.NewReplacer(" ", "", "_", "", ",", "").Replace(s)
	bits := make([]uint8, len(s))
	for i, c := range s {
		switch c {
		case '0':
		case '1':
			bits[i] = 1
		default:
			return nil, fmt.Errorf("%q at %d: %w", c, i, modem.ErrNotBinary)
		}
	}
	return bits, nil
}

func formatBits(bits []uint8) string {
	var sb strings.Builder
	for _, b := range bits {
		sb.WriteByte('0' + b)
	}
	return sb.String()
}
