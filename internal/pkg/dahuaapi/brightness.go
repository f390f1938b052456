package dahuaapi

import (
	"math"
	"strconv"
)

// DahuaToHassBrightness converts a device 0-100 string to the host 0-255
// scale.  Empty or unparsable input is treated as full brightness.
func DahuaToHassBrightness(s string) int {
	d, err := strconv.ParseFloat(s, 64)
	if s == "" || err != nil {
		d = 100
	}

	return int(d * 255 / 100)
}

// HassToDahuaBrightness converts a host 0-255 value to the device 0-100 scale.
// A nil brightness is taken as 100 on the host scale.
func HassToDahuaBrightness(b *int) int {
	h := 100
	if b != nil {
		h = *b
	}

	return int(math.Round(float64(h) * 100 / 255))
}
