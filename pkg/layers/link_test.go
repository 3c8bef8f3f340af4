package layers

import (
	"context"
	"crypto/rand"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"QPSKLink/pkg/channel"
	"QPSKLink/pkg/transmitter"
)

func newLink(t *testing.T, snr float64, cfg LinkConfig) *Link {
	t.Helper()
	tx, err := transmitter.New(snr, transmitter.WithSeed(11), transmitter.WithChunkSize(1024))
	if err != nil {
		t.Fatal(err)
	}
	link, err := NewLink(tx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return link
}

func TestNewLinkConfig(t *testing.T) {
	tx := transmitter.Noiseless()
	for _, cfg := range []LinkConfig{{BytePerFrame: 0}, {BytePerFrame: 256}} {
		if _, err := NewLink(tx, cfg, zerolog.Nop()); err == nil {
			t.Errorf("expected an error for %+v", cfg)
		}
	}
	if _, err := NewLink(tx, LinkConfig{BytePerFrame: 10, DataShards: 200, ParityShards: 100}, zerolog.Nop()); err == nil {
		t.Errorf("expected an error for more than 256 shards")
	}
}

func TestLinkEncodeDecode(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LinkConfig
		payload int
		frames  int
	}{
		{"no fec", LinkConfig{BytePerFrame: 32}, 100, 4},
		{"no fec exact", LinkConfig{BytePerFrame: 25}, 100, 4},
		{"empty payload", LinkConfig{BytePerFrame: 25}, 0, 1},
		{"fec full groups", LinkConfig{BytePerFrame: 25, DataShards: 4, ParityShards: 2}, 200, 12},
		{"fec padded group", LinkConfig{BytePerFrame: 25, DataShards: 4, ParityShards: 2}, 130, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := newLink(t, 1, tt.cfg)
			payload := make([]byte, tt.payload)
			rand.Read(payload)

			frames, err := link.Encode(payload)
			if err != nil {
				t.Fatal(err)
			}
			if len(frames) != tt.frames {
				t.Errorf("expected %d frames, got %d", tt.frames, len(frames))
			}

			output, report, err := link.Decode(frames)
			if err != nil {
				t.Fatal(err)
			}
			if report.CRCFailures != 0 {
				t.Errorf("expected no CRC failures, got %d", report.CRCFailures)
			}
			if !reflect.DeepEqual(payload, output) && !(len(payload) == 0 && len(output) == 0) {
				t.Errorf("payload and output are different")
			}
		})
	}
}

func TestLinkRecoversCorruptedFrames(t *testing.T) {
	link := newLink(t, 1, LinkConfig{BytePerFrame: 20, DataShards: 4, ParityShards: 2})
	payload := make([]byte, 160)
	rand.Read(payload)

	frames, err := link.Encode(payload)
	if err != nil {
		t.Fatal(err)
	}
	// two losses in the first group, one in the second
	frames[0][7] ^= 0x10
	frames[2][3] ^= 0x01
	frames[9][10] ^= 0xff

	output, report, err := link.Decode(frames)
	if err != nil {
		t.Fatal(err)
	}
	if report.CRCFailures != 3 {
		t.Errorf("expected 3 CRC failures, got %d", report.CRCFailures)
	}
	if report.Recovered != 3 || report.Unrecoverable != 0 {
		t.Errorf("expected 3 recovered and 0 unrecoverable, got %+v", report)
	}
	if !reflect.DeepEqual(payload, output) {
		t.Errorf("payload and output are different")
	}
}

func TestLinkTooManyLosses(t *testing.T) {
	link := newLink(t, 1, LinkConfig{BytePerFrame: 20, DataShards: 4, ParityShards: 1})
	payload := make([]byte, 80)
	rand.Read(payload)

	frames, _ := link.Encode(payload)
	frames[0][8] ^= 0x01
	frames[1][8] ^= 0x01

	output, report, err := link.Decode(frames)
	if err != nil {
		t.Fatal(err)
	}
	if report.Unrecoverable != 2 {
		t.Errorf("expected 2 unrecoverable frames, got %+v", report)
	}
	if len(output) != len(payload) {
		t.Errorf("expected %d bytes, got %d", len(payload), len(output))
	}
}

func TestLinkSendNoiseless(t *testing.T) {
	link, err := NewLink(transmitter.Noiseless(), LinkConfig{BytePerFrame: 125, DataShards: 8, ParityShards: 2}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	payload := make([]byte, 1000)
	rand.Read(payload)

	output, report, err := link.Send(context.Background(), payload)
	if err != nil {
		t.Fatal(err)
	}
	if report.BitErrors != 0 || report.CRCFailures != 0 {
		t.Errorf("expected a clean transmission, got %+v", report)
	}
	if !reflect.DeepEqual(payload, output) {
		t.Errorf("payload and output are different")
	}
}

func TestLinkSendNoisy(t *testing.T) {
	// 12 dB: bit error rate around 4e-5, about one frame in 90 fails its CRC
	link := newLink(t, channel.SNRFromDB(12), LinkConfig{BytePerFrame: 32, DataShards: 6, ParityShards: 3})
	payload := make([]byte, 20000)
	for i := range payload {
		payload[i] = byte(i * 31)
	}

	output, report, err := link.Send(context.Background(), payload)
	if err != nil {
		t.Fatal(err)
	}
	if report.CRCFailures == 0 {
		t.Logf("no CRC failures at this seed, report %+v", report)
	}
	if report.Unrecoverable != 0 {
		t.Errorf("expected parity to cover every loss, got %+v", report)
	}
	if !reflect.DeepEqual(payload, output) {
		t.Errorf("payload and output are different")
	}
}

func TestLinkSwappedFrames(t *testing.T) {
	tests := []struct {
		name          string
		cfg           LinkConfig
		recovered     int
		unrecoverable int
	}{
		{"no fec", LinkConfig{BytePerFrame: 25}, 0, 2},
		{"fec", LinkConfig{BytePerFrame: 25, DataShards: 4, ParityShards: 2}, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := newLink(t, 1, tt.cfg)
			payload := make([]byte, 100)
			rand.Read(payload)

			frames, err := link.Encode(payload)
			if err != nil {
				t.Fatal(err)
			}
			frames[1], frames[2] = frames[2], frames[1]

			output, report, err := link.Decode(frames)
			if err != nil {
				t.Fatal(err)
			}
			if report.CRCFailures != 0 || report.Misplaced != 2 {
				t.Errorf("expected 0 CRC failures and 2 misplaced frames, got %+v", report)
			}
			if report.Recovered != tt.recovered || report.Unrecoverable != tt.unrecoverable {
				t.Errorf("expected %d recovered and %d unrecoverable, got %+v", tt.recovered, tt.unrecoverable, report)
			}
			if equal := reflect.DeepEqual(payload, output); equal != (tt.recovered == 2) {
				t.Errorf("payload restored: %v", equal)
			}
		})
	}
}

func TestLinkPaddingFramesCarryIndex(t *testing.T) {
	link := newLink(t, 1, LinkConfig{BytePerFrame: 25, DataShards: 4, ParityShards: 2})
	frames, err := link.Encode(make([]byte, 30))
	if err != nil {
		t.Fatal(err)
	}
	for i := range 4 {
		var header FrameHeader
		if err := header.FromBytes(frames[i]); err != nil {
			t.Fatal(err)
		}
		if header.Index != uint32(i) {
			t.Errorf("frame %d carries index %d", i, header.Index)
		}
	}
}
