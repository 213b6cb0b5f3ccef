package framework

import (
	"context"
	"fmt"
)

// RequestFunc is executed on the loop goroutine.
type RequestFunc func(ControlContext) (interface{}, error)

// Result is the outcome of a Request.
type Result struct {
	Value interface{}
	Err   error
}

// Request is a message carrying a function to be executed by the loop.
type Request struct {
	Func RequestFunc

	resultCh chan Result
}

// NewRequest creates a Request.
func NewRequest(fn RequestFunc) *Request {
	return &Request{Func: fn, resultCh: make(chan Result, 1)}
}

// NewMessage implements Message.
func (r *Request) NewMessage() Message {
	return &Request{resultCh: make(chan Result, 1)}
}

// ResultChan receives the result once.
func (r *Request) ResultChan() <-chan Result {
	return r.resultCh
}

func (r *Request) execute(ctx ControlContext) {
	var res Result
	func() {
		defer func() {
			if v := recover(); v != nil {
				res.Err = fmt.Errorf("request panic: %v", v)
			}
		}()
		if r.Func == nil {
			res.Err = fmt.Errorf("empty request")
			return
		}
		res.Value, res.Err = r.Func(ctx)
	}()
	r.resultCh <- res
}

// RequestServer executes Requests posted to the loop.
type RequestServer struct{}

// Control implements Controller.
func (RequestServer) Control(ctx ControlContext) error {
	ctx.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
		if req, ok := mc.CurrentMessage().(*Request); ok {
			mc.MessageTaken()
			req.execute(ctx)
		}
	}))
	return nil
}

// AddToLoop implements LoopAdder.
func (s RequestServer) AddToLoop(loop *Loop) {
	loop.AddController(PrLvControl, s)
}

// Call posts fn to the loop and waits for its result. The loop must
// have a RequestServer.
func (l *Loop) Call(ctx context.Context, fn RequestFunc) (interface{}, error) {
	req := NewRequest(fn)
	l.PostMessage(req)
	l.TriggerNext()
	select {
	case res := <-req.resultCh:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
