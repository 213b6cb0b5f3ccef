// Package clock provides the time sources of the flight computer: a
// monotonic uptime and a wall clock in unix seconds.
package clock

import (
	"sync"
	"time"

	"github.com/golang/glog"
)

// Clock is the time source consumed by the logging subsystem.
type Clock interface {
	UptimeMs() uint64
	UptimeS() uint32
	UnixTime() uint32
}

// TimeReader reads the wall clock from a real-time clock chip.
type TimeReader interface {
	ReadTime() (time.Time, error)
}

// System measures uptime from process start. Unix time comes from the
// RTC when present, otherwise from the host clock.
type System struct {
	RTC TimeReader

	start time.Time

	lock     sync.Mutex
	rtcBase  uint32
	rtcAt    time.Time
	rtcValid bool
	// ResyncPeriod is how often the RTC is read again.
	ResyncPeriod time.Duration
}

// NewSystem creates a System starting now.
func NewSystem(rtc TimeReader) *System {
	return &System{RTC: rtc, start: time.Now(), ResyncPeriod: time.Minute}
}

// UptimeMs implements Clock.
func (c *System) UptimeMs() uint64 {
	return uint64(time.Since(c.start) / time.Millisecond)
}

// UptimeS implements Clock.
func (c *System) UptimeS() uint32 {
	return uint32(time.Since(c.start) / time.Second)
}

// UnixTime implements Clock. The RTC is read at most once per
// ResyncPeriod and extrapolated with the monotonic clock in between.
func (c *System) UnixTime() uint32 {
	if c.RTC == nil {
		return uint32(time.Now().Unix())
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	now := time.Now()
	if !c.rtcValid || now.Sub(c.rtcAt) >= c.ResyncPeriod {
		t, err := c.RTC.ReadTime()
		if err != nil {
			glog.Warningf("rtc read error: %v", err)
			if !c.rtcValid {
				return uint32(now.Unix())
			}
		} else {
			c.rtcBase, c.rtcAt, c.rtcValid = uint32(t.Unix()), now, true
		}
	}
	return c.rtcBase + uint32(now.Sub(c.rtcAt)/time.Second)
}

// Manual is a Clock advanced explicitly. Unix time is Epoch plus uptime.
type Manual struct {
	Ms    uint64
	Epoch uint32
}

// UptimeMs implements Clock.
func (c *Manual) UptimeMs() uint64 { return c.Ms }

// UptimeS implements Clock.
func (c *Manual) UptimeS() uint32 { return uint32(c.Ms / 1000) }

// UnixTime implements Clock.
func (c *Manual) UnixTime() uint32 { return c.Epoch + uint32(c.Ms/1000) }

// Advance moves the clock forward.
func (c *Manual) Advance(d time.Duration) {
	c.Ms += uint64(d / time.Millisecond)
}

// Set moves the clock to ms of uptime.
func (c *Manual) Set(ms uint64) {
	c.Ms = ms
}
