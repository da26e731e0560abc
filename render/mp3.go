package render

import (
	"encoding/binary"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/wippyai/wasm-worklet/errors"
)

// go-mp3 always produces 16-bit little-endian stereo.
const (
	mp3Channels   = 2
	mp3FrameBytes = mp3Channels * 2
)

// mp3Reader is the part of go-mp3's Decoder a source reads from.
type mp3Reader interface {
	Read([]byte) (int, error)
	SampleRate() int
	Length() int64
}

type mp3Source struct {
	dec     mp3Reader
	buf     []byte
	pending int
}

func (s *mp3Source) SampleRate() int { return s.dec.SampleRate() }
func (s *mp3Source) Channels() int   { return mp3Channels }
func (s *mp3Source) Close() error    { return nil }

func (s *mp3Source) Length() int64 {
	if n := s.dec.Length(); n >= 0 {
		return n / mp3FrameBytes
	}
	return -1
}

func (s *mp3Source) ReadFrames(dst [][]float32) (int, error) {
	if len(dst) == 0 || len(dst[0]) == 0 {
		return 0, nil
	}
	want := len(dst[0]) * mp3FrameBytes
	if cap(s.buf) < want {
		buf := make([]byte, want)
		copy(buf, s.buf[:s.pending])
		s.buf = buf
	}
	s.buf = s.buf[:want]

	// go-mp3 may return a partial frame, keep the remainder for the next read
	n, err := s.dec.Read(s.buf[s.pending:])
	n += s.pending
	frames := n / mp3FrameBytes
	s.pending = n - frames*mp3FrameBytes

	for i := range frames {
		b := s.buf[i*mp3FrameBytes:]
		dst[0][i] = float32(int16(binary.LittleEndian.Uint16(b[0:2]))) / 32768
		dst[1][i] = float32(int16(binary.LittleEndian.Uint16(b[2:4]))) / 32768
	}
	copy(s.buf, s.buf[frames*mp3FrameBytes:n])

	if frames == 0 {
		if err == nil {
			return 0, nil
		}
		if err != io.EOF {
			return 0, errors.Wrap(errors.PhaseRender, errors.KindInvalidData, err, "decode mp3")
		}
		return 0, io.EOF
	}
	if err != nil && err != io.EOF {
		return frames, errors.Wrap(errors.PhaseRender, errors.KindInvalidData, err, "decode mp3")
	}
	return frames, nil
}

// MP3Decoder decodes MPEG-1/2 Layer III streams.
type MP3Decoder struct{}

func (MP3Decoder) Decode(r io.Reader) (Source, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRender, errors.KindInvalidData, err, "open mp3 stream")
	}
	return &mp3Source{dec: dec}, nil
}
