package voice

import (
	"bufio"
	"io"
)

const (
	sampleRate = 48000
	channels   = 2
	frameSize  = 960 // samples per channel per 20ms frame
	frameBytes = frameSize * channels * 2
)

// gainReader wraps a raw s16le PCM source and applies a gain factor to every
// frame it reads. One is constructed per playback session; the gain function
// is read per frame so volume changes apply on the next frame.
type gainReader struct {
	r    *bufio.Reader
	buf  []byte
	gain func() float64
}

func newGainReader(r io.Reader, gain func() float64) *gainReader {
	return &gainReader{
		r:    bufio.NewReaderSize(r, 64*1024),
		buf:  make([]byte, frameBytes),
		gain: gain,
	}
}

// ReadFrame fills dst with one 20ms frame of gain-adjusted samples.
// dst must hold frameSize*channels samples.
func (g *gainReader) ReadFrame(dst []int16) error {
	if _, err := io.ReadFull(g.r, g.buf); err != nil {
		return err
	}
	vol := g.gain()
	for i := range dst {
		j := i * 2
		s := int16(g.buf[j]) | int16(int8(g.buf[j+1]))<<8
		v := float64(s) * vol
		switch {
		case v > 32767:
			dst[i] = 32767
		case v < -32768:
			dst[i] = -32768
		default:
			dst[i] = int16(v)
		}
	}
	return nil
}
