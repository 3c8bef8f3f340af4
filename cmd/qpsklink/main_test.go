package main

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"QPSKLink/internel/utils"
	"QPSKLink/pkg/modem"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd, a := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := execute(cmd, a)
	return out.String(), err
}

func writeTestImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 6, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(40 * x), G: uint8(60 * y), B: uint8(x * y), A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestImageCommandNoiseless(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	if err := os.MkdirAll(in, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTestImage(t, filepath.Join(in, "tiny.png"))

	got, err := run(t, "--noiseless", "image", "tiny.png", "--input-dir", in, "--output-dir", out)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"-- START --", "Transmitting image tiny.png via QPSK", "Equal: true", "Byte errors: 0/72", "-- FINISHED --"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "reconstructed_tiny.png")); err != nil {
		t.Errorf("reconstructed image not saved: %v", err)
	}
}

func TestImageCommandMissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, "image", "nope.png", "--input-dir", dir, "--output-dir", dir); err == nil {
		t.Error("expected error for missing image")
	}
}

func TestBitsCommand(t *testing.T) {
	got, err := run(t, "--noiseless", "bits", "1001")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "received 1001") || !strings.Contains(got, "equal true") {
		t.Errorf("unexpected output:\n%s", got)
	}

	if _, err := run(t, "bits", "101"); err == nil {
		t.Error("odd bitstream accepted")
	}
	if _, err := run(t, "bits", "10a1"); !errors.Is(err, modem.ErrNotBinary) {
		t.Errorf("got %v, want ErrNotBinary", err)
	}
}

func TestByteCommand(t *testing.T) {
	got, err := run(t, "--noiseless", "byte", "0x64")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "sent 100 received 100 equal true") {
		t.Errorf("unexpected output:\n%s", got)
	}
	if _, err := run(t, "byte", "256"); err == nil {
		t.Error("256 accepted as a byte")
	}
}

func TestBytesCommandHex(t *testing.T) {
	got, err := run(t, "--noiseless", "bytes", "--hex", "deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "received deadbeef") || !strings.Contains(got, "bit errors 0") {
		t.Errorf("unexpected output:\n%s", got)
	}
}

func TestFileCommand(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "payload.bin")
	dst := filepath.Join(dir, "received.bin")
	payload := bytes.Repeat([]byte("qpsk link "), 100)
	if err := os.WriteFile(src, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := run(t, "--noiseless", "file", src, "-o", dst, "--parity", "2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "Equal: true") || !strings.Contains(got, "CRC failures: 0") {
		t.Errorf("unexpected output:\n%s", got)
	}
	received, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(received, payload) {
		t.Error("received file differs from payload")
	}
}

func TestPacketCommand(t *testing.T) {
	got, err := run(t, "--noiseless", "packet", "ping")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Decoded: true", "10.0.0.1:40000 -> 10.0.0.2:5000", `Payload: "ping"`, "Checksum valid: true"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestSweepCommand(t *testing.T) {
	got, err := run(t, "sweep", "--min-db", "0", "--max-db", "2", "--step-db", "1", "--bits", "2000")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 4 {
		t.Errorf("got %d lines, want header plus 3 points:\n%s", len(lines), got)
	}
	if _, err := run(t, "sweep", "--bits", "3"); err == nil {
		t.Error("odd bit count accepted")
	}
}

func TestQPSKTheoreticalBER(t *testing.T) {
	if got := qpskTheoreticalBER(math.Inf(1)); got != 0 {
		t.Errorf("BER at infinite SNR = %v", got)
	}
	// Eb/N0 = 5 (Es/N0 = 10) gives Q(sqrt(10)) = 7.827e-4.
	if got := qpskTheoreticalBER(10); math.Abs(got-7.827e-4) > 1e-6 {
		t.Errorf("BER at SNR 10 = %v", got)
	}
	prev := 1.0
	for snr := 0.5; snr < 40; snr *= 2 {
		got := qpskTheoreticalBER(snr)
		if got >= prev {
			t.Errorf("BER not decreasing at snr %v", snr)
		}
		prev = got
	}
}

func TestParseBits(t *testing.T) {
	tests := []struct {
		in      string
		want    []uint8
		wantErr bool
	}{
		{"1001", []uint8{1, 0, 0, 1}, false},
		{"10 01_11,00", []uint8{1, 0, 0, 1, 1, 1, 0, 0}, false},
		{"", []uint8{}, false},
		{"12", nil, true},
	}
	for _, tt := range tests {
		got, err := parseBits(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseBits(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseBits(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if !tt.wantErr && formatBits(got) != strings.NewReplacer(" ", "", "_", "", ",", "").Replace(tt.in) {
			t.Errorf("formatBits round trip failed for %q", tt.in)
		}
	}
}

func TestIQDumpWrittenWhenCommandFails(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, filepath.Join(dir, "tiny.png"))
	// a regular file where the output directory should be
	blocked := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocked, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	txFile := filepath.Join(dir, "tx.iq")
	rxFile := filepath.Join(dir, "rx.iq")

	_, err := run(t, "--noiseless", "--iq-tx", txFile, "--iq-rx", rxFile,
		"image", "tiny.png", "--input-dir", dir, "--output-dir", blocked)
	if err == nil {
		t.Fatal("expected the image command to fail")
	}

	tx, err := utils.ReadIQ(txFile)
	if err != nil {
		t.Fatal(err)
	}
	// 72 bytes, 4 QPSK symbols each
	if len(tx) != 288 {
		t.Errorf("expected 288 symbols, got %d", len(tx))
	}
}

func TestIQCommand(t *testing.T) {
	dir := t.TempDir()
	txFile := filepath.Join(dir, "tx.iq")
	rxFile := filepath.Join(dir, "rx.iq")

	if _, err := run(t, "--noiseless", "--iq-tx", txFile, "--iq-rx", rxFile, "bytes", "hello"); err != nil {
		t.Fatal(err)
	}
	got, err := run(t, "--iq-tx", txFile, "--iq-rx", rxFile, "iq")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Symbols: 20", "SNR: +Inf", "Bit errors: 0/40"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	// reading must not overwrite the dumps
	if tx, err := utils.ReadIQ(txFile); err != nil || len(tx) != 20 {
		t.Errorf("tx dump changed: %d symbols, %v", len(tx), err)
	}

	if _, err := run(t, "iq"); err == nil {
		t.Error("expected an error without dumps")
	}
}

func TestMeasureIQ(t *testing.T) {
	m := modem.QPSK()
	tx, err := m.Modulate([]uint8{0, 0, 1, 0, 1, 1, 0, 1})
	if err != nil {
		t.Fatal(err)
	}
	rx := make([]complex128, len(tx))
	for i := range tx {
		rx[i] = tx[i] + complex(0.1, 0)
	}
	// flip the decision of the last symbol
	rx[3] = -tx[3]

	stats, err := measureIQ(tx, rx, m)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Symbols != 4 || stats.Bits != 8 || stats.BitErrors != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if math.Abs(stats.SignalPower-1) > 1e-12 {
		t.Errorf("expected unit signal power, got %v", stats.SignalPower)
	}
	// three symbols off by 0.1 and one by 2
	expectedNoise := (3*0.01 + 4) / 4
	if math.Abs(stats.NoisePower-expectedNoise) > 1e-12 {
		t.Errorf("expected noise power %v, got %v", expectedNoise, stats.NoisePower)
	}

	if _, err := measureIQ(tx, rx[:2], m); !errors.Is(err, errIQMismatch) {
		t.Errorf("expected errIQMismatch, got %v", err)
	}
}
