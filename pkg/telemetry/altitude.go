package telemetry

import "math"

// RingSize is the number of altitude samples used for vertical speed.
const RingSize = 10

const (
	settleTimeMs = RingSize * 1500
	staleAfterMs = 20000
)

type altitudeSample struct {
	time     int32
	altitude int32
}

// altitudeRing keeps the last RingSize altitude samples. A zero time
// marks a slot never written.
type altitudeRing struct {
	samples [RingSize]altitudeSample
	next    int
}

func (r *altitudeRing) add(timeMs, altitude int32) {
	r.samples[r.next] = altitudeSample{time: timeMs, altitude: altitude}
	r.next = (r.next + 1) % RingSize
}

// ComputeVerticalSpeed averages the rates between consecutive altitude
// samples, in cm/s. It is zero until the history is complete and when
// the newest sample is stale. Pairs without a positive time delta are
// skipped.
func (a *Accumulator) ComputeVerticalSpeed(nowMs uint64) int32 {
	if nowMs < settleTimeMs {
		return 0
	}
	r := &a.ring
	for _, s := range r.samples {
		if s.time == 0 {
			return 0
		}
	}
	var sum int64
	for k := 0; k < RingSize-1; k++ {
		prev := r.samples[(r.next+k)%RingSize]
		cur := r.samples[(r.next+k+1)%RingSize]
		dt := int64(cur.time) - int64(prev.time)
		if dt <= 0 {
			continue
		}
		sum += int64(cur.altitude-prev.altitude) * 1000 / dt
	}
	newest := r.samples[(r.next+RingSize-1)%RingSize]
	if int64(nowMs)-int64(newest.time) > staleAfterMs {
		return 0
	}
	return int32(sum / (RingSize - 1))
}

// AltitudeFromPressure converts pressure in Pa into altitude in cm using
// the standard atmosphere: troposphere up to 11 km, lower stratosphere up
// to 25 km, upper stratosphere above. Pressures at or below 111 Pa map to
// 50 km. The stratosphere coefficients are in cm so the layers join at
// 11 km and 25 km.
func AltitudeFromPressure(p uint32) int32 {
	pf := float64(p)
	switch {
	case p > 22632:
		return int32(-4433080 * (math.Pow(pf/101325, 0.190163) - 1))
	case p > 2481:
		return int32(1100000 - 633828.2*math.Log(pf/22552))
	case p > 111:
		return int32(2500000 - 3333080*(math.Pow(pf/2481, 0.190163)-1))
	}
	return 5000000
}
