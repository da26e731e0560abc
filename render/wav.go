package render

import (
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/wippyai/wasm-worklet/errors"
)

const wavFormatPCM = 1

// pcmReader is the part of wav.Decoder a source reads from.
type pcmReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

type wavSource struct {
	dec        pcmReader
	sampleRate int
	channels   int
	bitDepth   int
	frames     int64
	ints       *goaudio.IntBuffer
}

func (s *wavSource) SampleRate() int { return s.sampleRate }
func (s *wavSource) Channels() int   { return s.channels }
func (s *wavSource) Length() int64   { return s.frames }
func (s *wavSource) Close() error    { return nil }

func (s *wavSource) ReadFrames(dst [][]float32) (int, error) {
	if len(dst) == 0 || len(dst[0]) == 0 {
		return 0, nil
	}
	want := len(dst[0]) * s.channels
	if cap(s.ints.Data) < want {
		s.ints.Data = make([]int, want)
	}
	s.ints.Data = s.ints.Data[:want]

	n, err := s.dec.PCMBuffer(s.ints)
	frames := n / s.channels
	if frames == 0 {
		if err == nil || err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	}

	scale, offset := pcmScale(s.bitDepth)
	for i := range frames {
		for c := range s.channels {
			dst[c][i] = (float32(s.ints.Data[i*s.channels+c]) - offset) / scale
		}
	}
	if err == io.EOF {
		err = nil
	}
	return frames, err
}

// pcmScale returns the full-scale value and zero offset of integer PCM
// samples of the given depth. 8-bit WAV samples are unsigned.
func pcmScale(bitDepth int) (scale, offset float32) {
	if bitDepth == 8 {
		return 128, 128
	}
	return float32(math.Ldexp(1, bitDepth-1)), 0
}

// WavDecoder decodes integer PCM WAV files.
type WavDecoder struct{}

func (WavDecoder) Decode(r io.Reader) (Source, error) {
	rs, err := readSeeker(r)
	if err != nil {
		return nil, err
	}
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, errors.InvalidData(errors.PhaseRender, "not a WAV file")
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, errors.Unsupported(errors.PhaseRender, "WAV format tag other than integer PCM")
	}
	format := dec.Format()
	if format == nil || format.NumChannels < 1 {
		return nil, errors.InvalidData(errors.PhaseRender, "WAV file without channels")
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, errors.Unsupported(errors.PhaseRender, "WAV bit depth")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, errors.Wrap(errors.PhaseRender, errors.KindInvalidData, err, "seek to WAV data chunk")
	}

	frameBytes := int64(format.NumChannels) * int64(dec.BitDepth/8)
	return &wavSource{
		dec:        dec,
		sampleRate: format.SampleRate,
		channels:   format.NumChannels,
		bitDepth:   int(dec.BitDepth),
		frames:     dec.PCMLen() / frameBytes,
		ints:       &goaudio.IntBuffer{Format: format, SourceBitDepth: int(dec.BitDepth)},
	}, nil
}
