package beacon

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dumacp/gpsnmea"
	"github.com/golang/geo/s2"
)

var (
	ErrNotPosition = errors.New("not a position sentence")
	ErrInvalidFix  = errors.New("invalid fix")
)

const (
	prefixGGA = "$GPGGA"
	prefixRMC = "$GPRMC"
)

// Fix is a position reported by the receiver. Time carries only the UTC
// time of day of the sentence.
type Fix struct {
	Lat    float64
	Lon    float64
	Time   time.Time
	Source string
}

// parseSentence extracts a fix from a GGA or RMC sentence.
func parseSentence(frame string) (Fix, error) {
	switch {
	case strings.HasPrefix(frame, prefixGGA):
		vg := gpsnmea.ParseGGA(frame)
		if vg == nil {
			return Fix{}, fmt.Errorf("%w: unparseable %q", ErrInvalidFix, frame)
		}
		if !goodGGA(vg) {
			return Fix{}, fmt.Errorf("%w: poor quality %q", ErrInvalidFix, frame)
		}
		t0, err := timeOfDay(vg.TimeStamp)
		if err != nil {
			return Fix{}, err
		}
		return Fix{
			Lat:    gpsnmea.LatLongToDecimalDegree(vg.Lat, vg.LatCord),
			Lon:    gpsnmea.LatLongToDecimalDegree(vg.Long, vg.LongCord),
			Time:   t0,
			Source: prefixGGA[1:],
		}, nil
	case strings.HasPrefix(frame, prefixRMC):
		vg := gpsnmea.ParseRMC(frame)
		if vg == nil {
			return Fix{}, fmt.Errorf("%w: unparseable %q", ErrInvalidFix, frame)
		}
		if !vg.Validity {
			return Fix{}, fmt.Errorf("%w: void %q", ErrInvalidFix, frame)
		}
		t0, err := timeOfDay(vg.TimeStamp)
		if err != nil {
			return Fix{}, err
		}
		return Fix{
			Lat:    gpsnmea.LatLongToDecimalDegree(vg.Lat, vg.LatCord),
			Lon:    gpsnmea.LatLongToDecimalDegree(vg.Long, vg.LongCord),
			Time:   t0,
			Source: prefixRMC[1:],
		}, nil
	}
	return Fix{}, ErrNotPosition
}

func timeOfDay(ts string) (time.Time, error) {
	if len(ts) > 6 {
		ts = ts[:6]
	}
	t0, err := time.Parse("150405", ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrInvalidFix, ts)
	}
	return t0, nil
}

func goodGGA(g *gpsnmea.Gpgga) bool {
	if g.HDop > 1.6 && g.NumberSat < 5 {
		return false
	}
	if g.HDop > 1.7 {
		return false
	}
	if g.NumberSat < 3 {
		return false
	}
	return true
}

const (
	maxSpeedKmh = 120
	historySize = 5
)

// distanceKm is the great circle distance between two fixes.
func distanceKm(a, b Fix) float64 {
	p0 := s2.LatLngFromDegrees(a.Lat, a.Lon)
	p1 := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return p0.Distance(p1).Degrees() * 111.139
}

// plausibility rejects fixes that imply an impossible speed against the
// recent accepted ones.
type plausibility struct {
	history []Fix
}

func (p *plausibility) accept(f Fix) bool {
	for _, prev := range p.history {
		if prev.Time.After(f.Time) {
			// out of order or past midnight
			continue
		}
		hours := f.Time.Sub(prev.Time).Hours()
		d := distanceKm(prev, f)
		if hours == 0 {
			if d > 0.05 {
				return false
			}
			continue
		}
		if d/hours > maxSpeedKmh {
			return false
		}
	}
	if len(p.history) >= historySize {
		p.history = p.history[1:]
	}
	p.history = append(p.history, f)
	return true
}
