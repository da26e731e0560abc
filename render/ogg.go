package render

import (
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/wippyai/wasm-worklet/errors"
)

// oggReader is the part of oggvorbis.Reader a source reads from. Read
// fills interleaved samples and returns the number of values written.
type oggReader interface {
	SampleRate() int
	Channels() int
	Length() int64
	Read([]float32) (int, error)
}

type oggSource struct {
	dec oggReader
	buf []float32
}

func (s *oggSource) SampleRate() int { return s.dec.SampleRate() }
func (s *oggSource) Channels() int   { return s.dec.Channels() }
func (s *oggSource) Close() error    { return nil }

func (s *oggSource) Length() int64 {
	if n := s.dec.Length(); n > 0 {
		return n
	}
	return -1
}

func (s *oggSource) ReadFrames(dst [][]float32) (int, error) {
	if len(dst) == 0 || len(dst[0]) == 0 {
		return 0, nil
	}
	channels := s.dec.Channels()
	want := len(dst[0]) * channels
	if cap(s.buf) < want {
		s.buf = make([]float32, want)
	}
	s.buf = s.buf[:want]

	n, err := s.dec.Read(s.buf)
	frames := deinterleave(dst[:channels], 0, s.buf[:n])
	if err != nil && err != io.EOF {
		return frames, errors.Wrap(errors.PhaseRender, errors.KindInvalidData, err, "decode vorbis")
	}
	if frames == 0 && err == io.EOF {
		return 0, io.EOF
	}
	return frames, nil
}

// OggDecoder decodes Ogg Vorbis streams.
type OggDecoder struct{}

func (OggDecoder) Decode(r io.Reader) (Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRender, errors.KindInvalidData, err, "open ogg vorbis stream")
	}
	if dec.Channels() < 1 {
		return nil, errors.InvalidData(errors.PhaseRender, "vorbis stream without channels")
	}
	return &oggSource{dec: dec}, nil
}
