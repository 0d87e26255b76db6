package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func pcm(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func TestPeak(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"empty", nil, 0},
		{"silence", pcm(0, 0, 0), 0},
		{"positive", pcm(10, 700, -20), 700},
		{"negative", pcm(10, -900, 20), 900},
		{"full scale negative", pcm(-32768, 32767), 32768},
		{"odd trailing byte", append(pcm(5), 0xFF), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Peak(tt.data); got != tt.want {
				t.Errorf("Peak() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFramer(t *testing.T) {
	f := NewFramer(4)
	var frames []Frame
	collect := func(fr Frame) { frames = append(frames, fr) }

	f.Write([]byte{1, 2, 3}, time.Now(), collect)
	if len(frames) != 0 {
		t.Fatalf("got %d frames from 3 bytes, want 0", len(frames))
	}
	f.Write([]byte{4, 5, 6, 7, 8, 9}, time.Now(), collect)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !bytes.Equal(frames[0].Data, []byte{1, 2, 3, 4}) || !bytes.Equal(frames[1].Data, []byte{5, 6, 7, 8}) {
		t.Errorf("frames = %v", frames)
	}
	if f.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", f.Pending())
	}
	if frames[0].Samples() != 2 {
		t.Errorf("Samples() = %d, want 2", frames[0].Samples())
	}
}

func TestSelectDevice(t *testing.T) {
	devs := []Device{
		{ID: "aa01", Name: "Built-in Microphone"},
		{ID: "bb02", Name: "USB Headset"},
	}

	d, err := SelectDevice(devs, "")
	if err != nil || d != nil {
		t.Errorf("SelectDevice(\"\") = %v, %v; want nil, nil", d, err)
	}
	d, err = SelectDevice(devs, "bb02")
	if err != nil || d.Name != "USB Headset" {
		t.Errorf("SelectDevice(id) = %v, %v", d, err)
	}
	d, err = SelectDevice(devs, "built-in")
	if err != nil || d.ID != "aa01" {
		t.Errorf("SelectDevice(name) = %v, %v", d, err)
	}
	if _, err = SelectDevice(devs, "webcam"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("SelectDevice(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	in := pcm(0, 100, -100, 32767, -32768, 42)
	data, err := EncodeWAV(in, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE header: %q", data[:12])
	}
	if len(data) != 44+len(in) {
		t.Errorf("len(wav) = %d, want %d", len(data), 44+len(in))
	}

	out, rate, err := DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("decoded PCM = %v, want %v", out, in)
	}
}

func TestWriteWAVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunk.wav")
	in := pcm(1, 2, 3, 4)
	if err := WriteWAVFile(path, in, 8000); err != nil {
		t.Fatalf("WriteWAVFile() error = %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	out, rate, err := DecodeWAV(f)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if rate != 8000 || !bytes.Equal(out, in) {
		t.Errorf("got rate %d pcm %v", rate, out)
	}
}

func TestDecodeWAVInvalid(t *testing.T) {
	if _, _, err := DecodeWAV(bytes.NewReader([]byte("not a wav file at all"))); err == nil {
		t.Error("DecodeWAV() should fail on garbage input")
	}
}

func TestMemWriteSeeker(t *testing.T) {
	m := &memWriteSeeker{}
	m.Write([]byte("hello world"))
	if _, err := m.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	m.Write([]byte("J"))
	if _, err := m.Seek(0, io.SeekEnd); err != nil {
		t.Fatal(err)
	}
	m.Write([]byte("!"))
	if string(m.buf) != "Jello world!" {
		t.Errorf("buf = %q", m.buf)
	}
	if _, err := m.Seek(-100, io.SeekCurrent); err == nil {
		t.Error("negative seek should fail")
	}
}

func TestReaderSourceFramesAndEOF(t *testing.T) {
	cfg := Config{SampleRate: 16000, FrameSize: 2}
	// Two full frames and a partial one.
	r := bytes.NewReader([]byte{1, 0, 2, 0, 3, 0, 4, 0, 5})
	src := NewReaderSource(r, cfg, zerolog.Nop())

	var frames []Frame
	err := src.Run(context.Background(), func(f Frame) { frames = append(frames, f) })
	if !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("Run() error = %v, want ErrEndOfStream", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if Peak(frames[1].Data) != 4 {
		t.Errorf("frame 2 peak = %d, want 4", Peak(frames[1].Data))
	}
}

type flakyReader struct {
	failures int
	data     *bytes.Reader
}

func (f *flakyReader) Read(p []byte) (int, error) {
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("device busy")
	}
	return f.data.Read(p)
}

func TestReaderSourceRetriesTransientErrors(t *testing.T) {
	cfg := Config{SampleRate: 16000, FrameSize: 1}
	fr := &flakyReader{failures: 2, data: bytes.NewReader([]byte{7, 0})}
	src := NewReaderSource(fr, cfg, zerolog.Nop())
	var slept []time.Duration
	src.sleep = func(d time.Duration) { slept = append(slept, d) }

	var n int
	err := src.Run(context.Background(), func(Frame) { n++ })
	if !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("Run() error = %v, want ErrEndOfStream", err)
	}
	if n != 1 {
		t.Errorf("got %d frames, want 1", n)
	}
	if len(slept) != 2 || slept[0] != readRetryDelay {
		t.Errorf("slept = %v, want two %v pauses", slept, readRetryDelay)
	}
}

func TestReaderSourceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewReaderSource(bytes.NewReader(make([]byte, 64)), Config{FrameSize: 4}, zerolog.Nop())
	if err := src.Run(ctx, func(Frame) { t.Error("no frames expected after cancel") }); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
}

// cancelingReader cancels its context during the first read, after the
// frame has already been requested.
type cancelingReader struct {
	cancel context.CancelFunc
	data   *bytes.Reader
}

func (c *cancelingReader) Read(p []byte) (int, error) {
	c.cancel()
	return c.data.Read(p)
}

func TestReaderSourceKeepsFrameReadDuringCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &cancelingReader{cancel: cancel, data: bytes.NewReader([]byte{9, 0, 9, 0, 1, 0, 1, 0})}
	src := NewReaderSource(r, Config{SampleRate: 16000, FrameSize: 2}, zerolog.Nop())

	var frames []Frame
	if err := src.Run(ctx, func(f Frame) { frames = append(frames, f) }); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want the one read during cancel", len(frames))
	}
	if Peak(frames[0].Data) != 9 {
		t.Errorf("frame peak = %d, want 9", Peak(frames[0].Data))
	}
}
