package rcd

import (
	"fmt"
	"runtime"
	"sync"
)

// Inputs below this size are unpacked on the calling goroutine
const minParallelBytes = 3 * 64 * 1024

// Unpack12 expands packed 12-bit samples into 16-bit values. Every 3 input bytes
// (b0, b1, b2) produce two samples:
//
//	s0 = b0<<4 | b1>>4
//	s1 = (b1 & 0x0f)<<8 | b2
//
// Triples are independent, so large inputs are split into chunks decoded in parallel.
func Unpack12(src []byte) ([]uint16, error) {
	return unpack12(src, runtime.GOMAXPROCS(0))
}

func unpack12(src []byte, workers int) ([]uint16, error) {
	if len(src)%3 != 0 {
		return nil, fmt.Errorf("%w: packed length %d is not a multiple of 3", ErrFormat, len(src))
	}

	dst := make([]uint16, len(src)/3*2)
	if workers < 2 || len(src) < minParallelBytes {
		unpackChunk(dst, src)
		return dst, nil
	}

	triples := len(src) / 3
	perWorker := (triples + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < triples; start += perWorker {
		end := min(start+perWorker, triples)

		wg.Add(1)
		go func(out []uint16, in []byte) {
			defer wg.Done()
			unpackChunk(out, in)
		}(dst[start*2:end*2], src[start*3:end*3])
	}
	wg.Wait()

	return dst, nil
}

func unpackChunk(dst []uint16, src []byte) {
	for i, j := 0, 0; i+2 < len(src); i, j = i+3, j+2 {
		b0, b1, b2 := uint16(src[i]), uint16(src[i+1]), uint16(src[i+2])

		dst[j] = b0<<4 | b1>>4
		dst[j+1] = (b1&0x0f)<<8 | b2
	}
}

// Pack12 is the inverse of Unpack12. Samples must come in pairs and only their
// low 12 bits are kept.
func Pack12(samples []uint16) ([]byte, error) {
	if len(samples)%2 != 0 {
		return nil, fmt.Errorf("%w: odd sample count %d", ErrFormat, len(samples))
	}

	dst := make([]byte, len(samples)/2*3)
	for i, j := 0, 0; i+1 < len(samples); i, j = i+2, j+3 {
		s0, s1 := samples[i]&0x0fff, samples[i+1]&0x0fff

		dst[j] = byte(s0 >> 4)
		dst[j+1] = byte(s0&0x0f)<<4 | byte(s1>>8)
		dst[j+2] = byte(s1)
	}

	return dst, nil
}

// HighGainRows reshapes an unpacked dual-gain readout of (2*height) x width samples
// and keeps every second row starting at row 1.
func HighGainRows(samples []uint16, width, height int) (*Grid, error) {
	if len(samples) != readoutGains*width*height {
		return nil, fmt.Errorf("%w: dimension mismatch, %d samples for %dx%d dual-gain frame",
			ErrFormat, len(samples), width, height)
	}

	grid := NewGrid(width, height)
	for row := 0; row < height; row++ {
		src := (readoutGains*row + 1) * width
		copy(grid.Pix[row*width:(row+1)*width], samples[src:src+width])
	}

	return grid, nil
}
