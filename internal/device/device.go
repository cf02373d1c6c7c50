package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrNoDevicesFound means no endpoint of the requested direction exists.
	ErrNoDevicesFound = errors.New("no devices found")
	// ErrDeviceNotMatched means a name fragment matched nothing. Callers are
	// expected to fall back to the default device.
	ErrDeviceNotMatched = errors.New("device not matched")
)

// Direction selects which side of an endpoint is captured.
type Direction int

const (
	Input Direction = iota
	// Loopback captures what an output device is playing.
	Loopback
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Loopback:
		return "loopback"
	}
	return "unknown"
}

// Descriptor is an immutable snapshot of one endpoint taken at enumeration
// time. Index is only valid until the next enumeration.
type Descriptor struct {
	Name              string
	Index             int
	MaxInputChannels  int
	MaxOutputChannels int
	HostAPI           string
	DefaultSampleRate float64
}

// MaxChannels returns the channel limit that applies when capturing d in dir.
func (d Descriptor) MaxChannels(dir Direction) int {
	if dir == Loopback {
		return d.MaxOutputChannels
	}
	return d.MaxInputChannels
}

func (d Descriptor) String() string {
	return fmt.Sprintf("[%d] %s", d.Index, d.Name)
}

// Enumerator is the hardware-level device list. It is queried on every
// lookup; results are never cached.
type Enumerator interface {
	Devices() ([]Descriptor, error)
}

// PlanChannels clamps requested to max. A non-positive max means the limit
// is unknown and the request is kept.
func PlanChannels(requested, max int) (resolved int, clamped bool) {
	if requested < 1 {
		requested = 1
	}
	if max > 0 && requested > max {
		return max, true
	}
	return requested, false
}

// Registry resolves user supplied names to concrete endpoints.
type Registry struct {
	enum    Enumerator
	markers []string
	log     zerolog.Logger
}

// NewRegistry creates a registry. markers are lower-cased name fragments of
// preferred hardware, tried in order when no explicit name is given.
func NewRegistry(enum Enumerator, markers []string, log zerolog.Logger) *Registry {
	m := make([]string, 0, len(markers))
	for _, marker := range markers {
		if marker = strings.ToLower(strings.TrimSpace(marker)); marker != "" {
			m = append(m, marker)
		}
	}
	return &Registry{enum: enum, markers: m, log: log}
}

// List returns every endpoint usable in dir, in enumeration order.
func (r *Registry) List(dir Direction) ([]Descriptor, error) {
	all, err := r.enum.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	out := make([]Descriptor, 0, len(all))
	for _, d := range all {
		if d.MaxChannels(dir) > 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

// Find is the strict lookup: the first device whose name contains fragment,
// case-insensitively.
func (r *Registry) Find(fragment string, dir Direction) (Descriptor, error) {
	candidates, err := r.candidates(dir)
	if err != nil {
		return Descriptor{}, err
	}
	if d, ok := matchFragment(candidates, fragment); ok {
		return d, nil
	}
	return Descriptor{}, fmt.Errorf("%w: %q (%s)", ErrDeviceNotMatched, fragment, dir)
}

// Resolve picks the endpoint to record from. An unmatched fragment is not
// an error: a warning is logged and the preferred-device heuristic applies,
// then the first enumerated device.
func (r *Registry) Resolve(fragment string, dir Direction) (Descriptor, error) {
	candidates, err := r.candidates(dir)
	if err != nil {
		return Descriptor{}, err
	}

	if strings.TrimSpace(fragment) != "" {
		if d, ok := matchFragment(candidates, fragment); ok {
			return d, nil
		}
		r.log.Warn().
			Err(ErrDeviceNotMatched).
			Str("fragment", fragment).
			Str("direction", dir.String()).
			Msg("Device not matched, using fallback")
	}

	for _, marker := range r.markers {
		if d, ok := matchFragment(candidates, marker); ok {
			return d, nil
		}
	}

	return candidates[0], nil
}

func (r *Registry) candidates(dir Direction) ([]Descriptor, error) {
	candidates, err := r.List(dir)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w (%s)", ErrNoDevicesFound, dir)
	}
	return candidates, nil
}

func matchFragment(candidates []Descriptor, fragment string) (Descriptor, bool) {
	needle := strings.ToLower(strings.TrimSpace(fragment))
	if needle == "" {
		return Descriptor{}, false
	}
	for _, d := range candidates {
		if strings.Contains(strings.ToLower(d.Name), needle) {
			return d, true
		}
	}
	return Descriptor{}, false
}
