// SPDX-License-Identifier: MIT
package audio

import "strings"

// Device represents an audio device
type Device struct {
	ID                int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// Type describes the device direction as shown by ListDevices.
func (d Device) Type() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	default:
		return "None"
	}
}

// IsMonitor reports whether the device looks like a loopback of an output,
// which is what PulseAudio and PipeWire call "Monitor of ...".
func (d Device) IsMonitor() bool {
	return strings.Contains(strings.ToLower(d.Name), "monitor")
}

// matchDevice picks the input device whose name best matches query.
// An exact case-insensitive name wins. Otherwise every whitespace separated
// word of query must appear in the name; among several candidates a monitor
// device is preferred, then the lowest ID.
func matchDevice(devices []Device, query string) (Device, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Device{}, false
	}
	words := strings.Fields(q)

	var (
		best  Device
		found bool
	)
	for _, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		name := strings.ToLower(d.Name)
		if name == q {
			return d, true
		}
		if !containsAll(name, words) {
			continue
		}
		if !found || (d.IsMonitor() && !best.IsMonitor()) {
			best, found = d, true
		}
	}
	return best, found
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}
