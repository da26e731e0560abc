package render

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wippyai/wasm-worklet/errors"
)

// Source is a decoded audio stream read as planar float32 frames in [-1, 1].
type Source interface {
	SampleRate() int
	Channels() int

	// ReadFrames fills dst[c][:n] for every channel c and returns n. It
	// reads at most len(dst[0]) frames. At end of stream it returns 0 and
	// io.EOF.
	ReadFrames(dst [][]float32) (int, error)

	Close() error
}

// Lengther is implemented by sources that know their length in frames.
type Lengther interface {
	Length() int64
}

// Decoder constructs a Source from an encoded stream.
type Decoder interface {
	Decode(r io.Reader) (Source, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(r io.Reader) (Source, error)

func (f DecoderFunc) Decode(r io.Reader) (Source, error) { return f(r) }

// Registry maps file extensions, without the dot and lower case, to
// decoders.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

// Register adds d for ext, replacing any previous decoder.
func (r *Registry) Register(ext string, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[normalizeExt(ext)] = d
}

// Lookup returns the decoder for ext.
func (r *Registry) Lookup(ext string) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.decoders[normalizeExt(ext)]
	return d, ok
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.decoders))
	for ext := range r.decoders {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Open decodes the file at path with the decoder registered for its
// extension. Closing the source closes the file.
func (r *Registry) Open(path string) (Source, error) {
	ext := filepath.Ext(path)
	d, ok := r.Lookup(ext)
	if !ok {
		return nil, errors.Unsupported(errors.PhaseRender, "audio format "+ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRender, errors.KindNotFound, err, "open "+path)
	}
	src, err := d.Decode(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileSource{Source: src, file: f}, nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry has decoders for wav, mp3 and ogg.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		defaultRegistry.Register("wav", WavDecoder{})
		defaultRegistry.Register("wave", WavDecoder{})
		defaultRegistry.Register("mp3", MP3Decoder{})
		defaultRegistry.Register("ogg", OggDecoder{})
		defaultRegistry.Register("oga", OggDecoder{})
	})
	return defaultRegistry
}

// Open decodes path with DefaultRegistry.
func Open(path string) (Source, error) {
	return DefaultRegistry().Open(path)
}

type fileSource struct {
	Source
	file *os.File
}

func (s *fileSource) Length() int64 {
	if l, ok := s.Source.(Lengther); ok {
		return l.Length()
	}
	return -1
}

func (s *fileSource) Close() error {
	err := s.Source.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Length returns the length of src in frames, or -1 when unknown.
func Length(src Source) int64 {
	if l, ok := src.(Lengther); ok {
		return l.Length()
	}
	return -1
}

// readSeeker returns r as an io.ReadSeeker, buffering it when needed.
func readSeeker(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRender, errors.KindInvalidData, err, "read stream")
	}
	return bytes.NewReader(data), nil
}

// deinterleave spreads interleaved src over planar dst starting at frame
// at and returns the number of whole frames copied.
func deinterleave(dst [][]float32, at int, src []float32) int {
	channels := len(dst)
	n := len(src) / channels
	for i := range n {
		for c := range channels {
			dst[c][at+i] = src[i*channels+c]
		}
	}
	return n
}
