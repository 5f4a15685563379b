// Package fakedata generates the dataset shown while the board is offline.
package fakedata

import (
	"libdb.so/trainboard/internal/dataconv"
	"libdb.so/trainboard/internal/led"
)

// Marker is the LED appended to every offline frame so that the offline
// display can be told apart from real data.
var Marker = led.New(3, 56, 0xF56E1B)

// TrainLength is the number of LEDs of a generated train.
const TrainLength = 3

var trainColors = []led.Color{led.Red, led.Yellow, led.Green, led.Blue}

// Generate returns a history of the given number of frames in which one train
// per strip moves along its strip, one LED per frame.
func Generate(strips []int, frames int) []byte {
	leds := make([]led.Led, 0, led.MaxLeds)
	var data []byte

	for f := 0; f < frames; f++ {
		leds = leds[:0]
		for s, size := range strips {
			if size <= 0 {
				continue
			}
			head := (f + 7*s) % size
			color := trainColors[s%len(trainColors)]
			for i := 0; i < TrainLength && i < size && len(leds) < led.MaxLeds-1; i++ {
				pos := (head - i + size) % size
				leds = append(leds, led.New(uint8(s), uint8(pos), color))
			}
		}

		if Marker.Strip() < len(strips) && Marker.Position() < strips[Marker.Strip()] {
			leds = append(leds, Marker)
		}

		data = dataconv.AppendFrame(data, leds)
	}

	return data
}
