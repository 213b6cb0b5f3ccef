package framework

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the period of the control loop.
const DefaultInterval = 100 * time.Millisecond

// LoopStats counts loop iterations.
type LoopStats struct {
	Iterations uint64
	// Overruns counts iterations lasting longer than Interval.
	Overruns uint64
	// Failures counts controllers returning an error or panicking.
	Failures    uint64
	MaxDuration time.Duration
}

// Loop runs the controllers by priority level, every Interval or as soon
// as TriggerNext is called. Controllers all run on the loop goroutine.
type Loop struct {
	Interval time.Duration

	levels  [PriorityLevels][]Controller
	runners []Runnable

	lock    sync.Mutex
	pending []Message
	stats   LoopStats

	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval, wakeUpCh: make(chan struct{}, 1)}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at a priority level. Controllers
// also implementing Runnable are started with the loop.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	l.levels[priorityLevel] = append(l.levels[priorityLevel], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnables started with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Stats returns a copy of the iteration counters.
func (l *Loop) Stats() LoopStats {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.stats
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	if len(l.runners) > 0 {
		runner := NewRunnerWith(ctx)
		runner.Go(l.runners...)
		defer runner.Wait()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-l.wakeUpCh:
		}
		l.runIteration(ctx, interval)
	}
}

// RunOrFail runs the loop until it fails and exits.
func (l *Loop) RunOrFail() {
	if err := l.Run(context.Background()); err != nil {
		glog.Exitf("loop: %v", err)
	}
}

// PostMessage implements LoopControl.
func (l *Loop) PostMessage(msg Message) {
	l.lock.Lock()
	l.pending = append(l.pending, msg)
	l.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

func (l *Loop) runIteration(ctx context.Context, interval time.Duration) {
	iter := &iteration{loop: l, ctx: ctx, time: time.Now()}
	l.lock.Lock()
	iter.messages, l.pending = l.pending, nil
	l.lock.Unlock()

	var failures uint64
	for level, ctls := range l.levels {
		iter.level = level
		for _, ctl := range ctls {
			if err := control(ctl, iter); err != nil {
				failures++
				glog.Errorf("controller %T: %v", ctl, err)
			}
		}
	}

	if n := len(iter.messages); n > 0 {
		glog.V(2).Infof("%d messages not taken", n)
	}

	elapsed := time.Since(iter.time)
	l.lock.Lock()
	l.stats.Iterations++
	l.stats.Failures += failures
	if elapsed > l.stats.MaxDuration {
		l.stats.MaxDuration = elapsed
	}
	if elapsed > interval {
		l.stats.Overruns++
		glog.V(2).Infof("loop overrun: %v", elapsed)
	}
	l.lock.Unlock()
}

// control keeps a panicking controller from stopping the loop.
func control(ctl Controller, cc ControlContext) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()
	return ctl.Control(cc)
}

type iteration struct {
	loop     *Loop
	ctx      context.Context
	time     time.Time
	level    int
	messages []Message
}

func (t *iteration) Context() context.Context { return t.ctx }
func (t *iteration) Time() time.Time          { return t.time }
func (t *iteration) PriorityLevel() int       { return t.level }
func (t *iteration) Messages() MessageStore   { return t }
func (t *iteration) PostMessage(msg Message)  { t.loop.PostMessage(msg) }
func (t *iteration) TriggerNext()             { t.loop.TriggerNext() }

// AddMessages implements MessageAppender.
func (t *iteration) AddMessages(msgs ...Message) {
	t.messages = append(t.messages, msgs...)
}

type messageContext struct {
	iter  *iteration
	msg   Message
	taken bool
	stop  bool
}

func (c *messageContext) CurrentMessage() Message     { return c.msg }
func (c *messageContext) MessageTaken()               { c.taken = true }
func (c *messageContext) StopProcessing()             { c.stop = true }
func (c *messageContext) AddMessages(msgs ...Message) { c.iter.AddMessages(msgs...) }

// ProcessMessages implements MessageStore. Messages added while
// processing are not visited until the next call.
func (t *iteration) ProcessMessages(proc MessageProcessor) {
	msgs := t.messages
	t.messages = nil
	remains := make([]Message, 0, len(msgs))
	for i, msg := range msgs {
		mc := &messageContext{iter: t, msg: msg}
		proc.ProcessMessage(mc)
		if !mc.taken {
			remains = append(remains, msg)
		}
		if mc.stop {
			remains = append(remains, msgs[i+1:]...)
			break
		}
	}
	t.messages = append(remains, t.messages...)
}
