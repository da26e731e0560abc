// Package render is an offline host: it decodes an audio file, feeds it
// block by block through a processing unit and writes the result.
//
//	src, err := render.Open("in.mp3")
//	defer src.Close()
//
//	out, _ := os.Create("out.wav")
//	sink := render.NewWavSink(out, src.SampleRate(), src.Channels())
//
//	r := &render.Renderer{Processor: proc, Params: map[string][]float32{"gain": {0.5}}}
//	res, err := r.Render(ctx, src, sink)
//	sink.Close()
//
// WAV (integer PCM, via go-audio/wav), MP3 (go-mp3) and Ogg Vorbis
// (oggvorbis) are decoded. Output is 16-bit PCM WAV.
package render
