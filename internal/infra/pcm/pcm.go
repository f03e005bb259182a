// Package pcm converts between audio files and mono 16-bit sample buffers.
package pcm

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

// resampleQuality is beep's interpolation window; 4 is its recommended
// quality for speech-bandwidth material.
const resampleQuality = 4

const streamChunk = 512

// DecodeFile reads a WAV or MP3 file, mixes it down to mono and resamples
// it to rate.
func DecodeFile(path string, rate int) ([]int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening audio file: %w", err)
	}
	defer f.Close()

	var (
		streamer beep.Streamer
		format   beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		streamer, format, err = wav.Decode(f)
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported audio file type %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}

	return Drain(streamer, format.SampleRate, rate)
}

// Drain reads s to the end at rate from, converting to mono int16 at rate to.
func Drain(s beep.Streamer, from beep.SampleRate, to int) ([]int16, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", from, to)
	}
	if int(from) != to {
		s = beep.Resample(resampleQuality, from, beep.SampleRate(to), s)
	}

	var out []int16
	buf := make([][2]float64, streamChunk)
	for {
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			out = append(out, toInt16((frame[0]+frame[1])/2))
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("reading samples: %w", err)
	}
	return out, nil
}

// WriteWAVFile writes samples as a mono 16-bit WAV file.
func WriteWAVFile(path string, samples []int16, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating wav file: %w", err)
	}
	if err := EncodeWAV(f, samples, rate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func EncodeWAV(w io.WriteSeeker, samples []int16, rate int) error {
	if rate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", rate)
	}
	format := beep.Format{
		SampleRate:  beep.SampleRate(rate),
		NumChannels: 1,
		Precision:   2,
	}
	if err := wav.Encode(w, NewStreamer(samples), format); err != nil {
		return fmt.Errorf("encoding wav: %w", err)
	}
	return nil
}

// Streamer plays an int16 buffer as a beep.Streamer.
type Streamer struct {
	samples []int16
	pos     int
}

func NewStreamer(samples []int16) *Streamer {
	return &Streamer{samples: samples}
}

func (s *Streamer) Stream(buf [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := 0
	for n < len(buf) && s.pos < len(s.samples) {
		v := float64(s.samples[s.pos]) / 32767
		buf[n] = [2]float64{v, v}
		n++
		s.pos++
	}
	return n, true
}

func (s *Streamer) Err() error { return nil }

func toInt16(v float64) int16 {
	v = math.Round(v * 32767)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
