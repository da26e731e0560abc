package render

import (
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/wippyai/wasm-worklet/errors"
)

// Sink receives rendered planar frames.
type Sink interface {
	// WriteFrames writes src[c][:n] for every channel c.
	WriteFrames(src [][]float32, n int) error
	Close() error
}

// WavSink encodes frames as 16-bit PCM WAV.
type WavSink struct {
	enc      *wav.Encoder
	channels int
	buf      *goaudio.IntBuffer
}

// NewWavSink creates a sink writing to w. The header is finalized on Close,
// which does not close w.
func NewWavSink(w io.WriteSeeker, sampleRate, channels int) *WavSink {
	format := &goaudio.Format{NumChannels: channels, SampleRate: sampleRate}
	return &WavSink{
		enc:      wav.NewEncoder(w, sampleRate, 16, channels, wavFormatPCM),
		channels: channels,
		buf:      &goaudio.IntBuffer{Format: format, SourceBitDepth: 16},
	}
}

// WriteFrames implements Sink. Samples outside [-1, 1] are clipped.
func (s *WavSink) WriteFrames(src [][]float32, n int) error {
	if len(src) != s.channels {
		return errors.InvalidInput(errors.PhaseRender, []string{"channels"}, "channel count differs from sink")
	}
	if n == 0 {
		return nil
	}
	want := n * s.channels
	if cap(s.buf.Data) < want {
		s.buf.Data = make([]int, want)
	}
	s.buf.Data = s.buf.Data[:want]
	for i := range n {
		for c := range s.channels {
			s.buf.Data[i*s.channels+c] = toPCM16(src[c][i])
		}
	}
	if err := s.enc.Write(s.buf); err != nil {
		return errors.Wrap(errors.PhaseRender, errors.KindInvalidData, err, "write wav frames")
	}
	return nil
}

// Close writes the final WAV header.
func (s *WavSink) Close() error {
	if err := s.enc.Close(); err != nil {
		return errors.Wrap(errors.PhaseRender, errors.KindInvalidData, err, "finalize wav")
	}
	return nil
}

func toPCM16(v float32) int {
	x := math.Round(float64(v) * 32768)
	return int(min(max(x, math.MinInt16), math.MaxInt16))
}

// BufferSink collects frames in memory.
type BufferSink struct {
	Channels [][]float32
}

// NewBufferSink creates a sink with channels empty channels.
func NewBufferSink(channels int) *BufferSink {
	return &BufferSink{Channels: make([][]float32, channels)}
}

// WriteFrames implements Sink.
func (s *BufferSink) WriteFrames(src [][]float32, n int) error {
	if len(src) != len(s.Channels) {
		return errors.InvalidInput(errors.PhaseRender, []string{"channels"}, "channel count differs from sink")
	}
	for c := range s.Channels {
		s.Channels[c] = append(s.Channels[c], src[c][:n]...)
	}
	return nil
}

// Close implements Sink.
func (s *BufferSink) Close() error { return nil }

// Frames returns the number of frames collected.
func (s *BufferSink) Frames() int {
	if len(s.Channels) == 0 {
		return 0
	}
	return len(s.Channels[0])
}
