// Package layers frames a payload for transmission over the QPSK channel.
// Every frame is protected by a CRC8; optional Reed-Solomon parity frames let
// the receiver rebuild frames whose CRC fails.
package layers

import (
	"context"
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"
	"github.com/rs/zerolog"

	"QPSKLink/pkg/modem"
	"QPSKLink/pkg/transmitter"
)

var ErrFrameCount = errors.New("received frame count does not match")

type LinkConfig struct {
	BytePerFrame int // payload bytes per frame, at most 255
	DataShards   int // data frames per Reed-Solomon group
	ParityShards int // parity frames per group, 0 disables FEC
}

// Report describes one transmission through the link.
type Report struct {
	Frames        int // frames on air, parity included
	Groups        int
	CRCFailures   int
	Misplaced     int // frames with a valid CRC whose index does not match their position
	Recovered     int // data frames rebuilt from parity
	Unrecoverable int // data frames delivered with a failed CRC
	BitErrors     int // channel bit errors over all frames
}

type Link struct {
	LinkConfig
	Transmitter *transmitter.QPSKTransmitter

	enc        reedsolomon.Encoder
	crcChecker modem.CRC8Checker
	log        zerolog.Logger
}

func NewLink(t *transmitter.QPSKTransmitter, cfg LinkConfig, log zerolog.Logger) (*Link, error) {
	if cfg.BytePerFrame < 1 || cfg.BytePerFrame > 255 {
		return nil, fmt.Errorf("byte per frame %d out of range [1, 255]", cfg.BytePerFrame)
	}
	if cfg.DataShards < 1 {
		cfg.DataShards = 1
	}
	l := &Link{
		LinkConfig:  cfg,
		Transmitter: t,
		log:         log,
	}
	if cfg.ParityShards > 0 {
		enc, err := reedsolomon.New(cfg.DataShards, cfg.ParityShards)
		if err != nil {
			return nil, fmt.Errorf("reed-solomon %d+%d: %w", cfg.DataShards, cfg.ParityShards, err)
		}
		l.enc = enc
	}
	return l, nil
}

// shardSize is the size of a frame without its CRC byte.
func (l *Link) shardSize() int {
	return FrameHeader{}.NumBytes() + l.BytePerFrame
}

func (l *Link) groupSize() int {
	if l.enc == nil {
		return l.DataShards
	}
	return l.DataShards + l.ParityShards
}

// dataIndex maps the position of a frame on air to the index its header
// carries. Parity frames have no header.
func (l *Link) dataIndex(position int) (uint32, bool) {
	if l.enc == nil {
		return uint32(position), true
	}
	group, i := position/l.groupSize(), position%l.groupSize()
	if i >= l.DataShards {
		return 0, false
	}
	return uint32(group*l.DataShards + i), true
}

// Encode splits payload into frames, each ending with its CRC8.
// With FEC enabled every group of DataShards frames is padded with empty
// frames and followed by ParityShards parity frames.
func (l *Link) Encode(payload []byte) ([][]byte, error) {
	frameCount := max((len(payload)+l.BytePerFrame-1)/l.BytePerFrame, 1)

	shards := make([][]byte, 0, frameCount)
	for i := range frameCount {
		chunk := payload[min(i*l.BytePerFrame, len(payload)):min((i+1)*l.BytePerFrame, len(payload))]
		shard := make([]byte, l.shardSize())
		header := FrameHeader{
			Index:  uint32(i),
			Length: uint8(len(chunk)),
			IsLast: i == frameCount-1,
		}
		copy(shard, header.ToBytes())
		copy(shard[header.NumBytes():], chunk)
		shards = append(shards, shard)
	}

	if l.enc == nil {
		return l.appendCRC(shards), nil
	}

	frames := make([][]byte, 0, len(shards)+l.ParityShards*(len(shards)/l.DataShards+1))
	for g := 0; g < len(shards); g += l.DataShards {
		group := make([][]byte, l.DataShards+l.ParityShards)
		for i := range group {
			switch {
			case g+i < len(shards) && i < l.DataShards:
				group[i] = shards[g+i]
			case i < l.DataShards:
				// empty padding frame, still indexed by its position
				group[i] = make([]byte, l.shardSize())
				copy(group[i], FrameHeader{Index: uint32(g + i)}.ToBytes())
			default:
				group[i] = make([]byte, l.shardSize())
			}
		}
		if err := l.enc.Encode(group); err != nil {
			return nil, fmt.Errorf("encode group %d: %w", g/l.DataShards, err)
		}
		frames = append(frames, l.appendCRC(group)...)
	}
	return frames, nil
}

func (l *Link) appendCRC(shards [][]byte) [][]byte {
	frames := make([][]byte, len(shards))
	for i, shard := range shards {
		frames[i] = append(shard[:len(shard):len(shard)], l.crcChecker.Calculate(shard))
	}
	return frames
}

// Decode checks every frame's CRC, rebuilds what parity allows and reassembles the payload.
func (l *Link) Decode(frames [][]byte) ([]byte, Report, error) {
	report := Report{Frames: len(frames)}
	frameSize := l.shardSize() + 1

	shards := make([][]byte, len(frames))
	failed := make([]bool, len(frames))
	for i, frame := range frames {
		if len(frame) != frameSize {
			return nil, report, fmt.Errorf("frame %d has %d bytes, expected %d: %w", i, len(frame), frameSize, ErrShortFrame)
		}
		shards[i] = frame[:frameSize-1]
		if l.crcChecker.Calculate(shards[i]) != frame[frameSize-1] {
			failed[i] = true
			report.CRCFailures++
			continue
		}
		index, ok := l.dataIndex(i)
		if !ok {
			continue
		}
		var header FrameHeader
		if err := header.FromBytes(shards[i]); err != nil {
			return nil, report, err
		}
		if header.Index != index {
			l.log.Debug().Int("position", i).Uint32("index", header.Index).Uint32("expected", index).Msg("frame out of place")
			failed[i] = true
			report.Misplaced++
		}
	}

	if l.enc != nil {
		if len(frames)%l.groupSize() != 0 {
			return nil, report, fmt.Errorf("%d frames for groups of %d: %w", len(frames), l.groupSize(), ErrFrameCount)
		}
		data := make([][]byte, 0, len(frames))
		dataFailed := make([]bool, 0, len(frames))
		for g := 0; g < len(frames); g += l.groupSize() {
			report.Groups++
			group := make([][]byte, l.groupSize())
			lost := 0
			for i := range group {
				if failed[g+i] {
					lost++
					continue
				}
				group[i] = shards[g+i]
			}
			if lost > 0 && lost <= l.ParityShards {
				if err := l.enc.ReconstructData(group); err != nil {
					return nil, report, fmt.Errorf("reconstruct group %d: %w", report.Groups-1, err)
				}
				for i := range l.DataShards {
					if failed[g+i] {
						report.Recovered++
						failed[g+i] = false
					}
				}
				l.log.Debug().Int("group", report.Groups-1).Int("lost", lost).Msg("group rebuilt from parity")
			} else if lost > 0 {
				l.log.Warn().Int("group", report.Groups-1).Int("lost", lost).Int("parity", l.ParityShards).Msg("too many frames lost to rebuild")
				for i := range group {
					if group[i] == nil {
						group[i] = shards[g+i]
					}
				}
			}
			data = append(data, group[:l.DataShards]...)
			dataFailed = append(dataFailed, failed[g:g+l.DataShards]...)
		}
		shards, failed = data, dataFailed
	}

	var payload []byte
	for i, shard := range shards {
		var header FrameHeader
		if err := header.FromBytes(shard); err != nil {
			return nil, report, err
		}
		if failed[i] {
			report.Unrecoverable++
		}
		n := min(int(header.Length), l.BytePerFrame)
		payload = append(payload, shard[header.NumBytes():header.NumBytes()+n]...)
		if header.IsLast && !failed[i] {
			break
		}
	}
	return payload, report, nil
}

// Send encodes payload, pushes every frame through the transmitter and decodes
// what comes out of the channel.
func (l *Link) Send(ctx context.Context, payload []byte) ([]byte, Report, error) {
	frames, err := l.Encode(payload)
	if err != nil {
		return nil, Report{}, err
	}

	frameSize := l.shardSize() + 1
	onAir := make([]byte, 0, len(frames)*frameSize)
	for _, frame := range frames {
		onAir = append(onAir, frame...)
	}

	l.log.Debug().Int("payload", len(payload)).Int("frames", len(frames)).Int("bytes", len(onAir)).Msg("sending")
	received, err := l.Transmitter.TransmitByteArrayContext(ctx, onAir)
	if err != nil {
		return nil, Report{}, err
	}

	receivedFrames := make([][]byte, len(frames))
	for i := range receivedFrames {
		receivedFrames[i] = received[i*frameSize : (i+1)*frameSize]
	}

	output, report, err := l.Decode(receivedFrames)
	report.BitErrors = modem.CountBitErrors(onAir, received)
	if err != nil {
		return nil, report, err
	}
	l.log.Info().
		Int("frames", report.Frames).
		Int("crc_failures", report.CRCFailures).
		Int("misplaced", report.Misplaced).
		Int("recovered", report.Recovered).
		Int("unrecoverable", report.Unrecoverable).
		Int("bit_errors", report.BitErrors).
		Msg("link transmission done")
	return output, report, nil
}
