package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollInterval    = time.Second
	defaultToolConcurrency = 4

	// status fetches allowed for a cancelled run to settle
	maxStopPolls = 60
)

// runSession is the part of Session the driver needs.
type runSession interface {
	GetRunStatus(ctx context.Context, runId string) (ThreadRun, error)
	SubmitToolOutputs(ctx context.Context, runId string, outputs []ToolOutput) error
	CancelRun(ctx context.Context, runId string) error
}

// RunResult describes how a run reached its terminal status.
type RunResult struct {
	RunId      string
	Status     RunStatus
	Polls      int
	ToolRounds int
}

// RunDriver polls a started run until it reaches a terminal status,
// answering requires_action rounds from the function registry.
type RunDriver struct {
	session     runSession
	registry    *FunctionRegistry
	interval    time.Duration
	maxPolls    int
	concurrency int
	sleep       func(ctx context.Context, d time.Duration) error
	progress    runProgress
}

type DriverOption func(*RunDriver)

// WithPollInterval sets the fixed delay between status fetches.
// Non-positive values are ignored.
func WithPollInterval(interval time.Duration) DriverOption {
	return func(d *RunDriver) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// WithMaxPolls bounds the number of status fetches for one run. Zero
// means unbounded.
func WithMaxPolls(n int) DriverOption {
	return func(d *RunDriver) {
		if n >= 0 {
			d.maxPolls = n
		}
	}
}

// WithToolConcurrency bounds how many calls of one batch run at once.
func WithToolConcurrency(n int) DriverOption {
	return func(d *RunDriver) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) DriverOption {
	return func(d *RunDriver) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

func WithProgress(progress runProgress) DriverOption {
	return func(d *RunDriver) {
		d.progress = progress
	}
}

func NewRunDriver(session runSession, registry *FunctionRegistry, opts ...DriverOption) *RunDriver {
	d := &RunDriver{
		session:     session,
		registry:    registry,
		interval:    defaultPollInterval,
		concurrency: defaultToolConcurrency,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.registry == nil {
		d.registry = NewFunctionRegistry()
	}
	return d
}

// Drive fetches the run status once, then keeps polling at the fixed
// interval. A requires_action status dispatches the whole batch of tool
// calls, submits the outputs in one request and resumes polling.
//
// Completed runs return a nil error. Failed, cancelled, expired and
// incomplete runs return a RunTerminalError. Remote failures and tool
// invocation failures are returned as is.
func (d *RunDriver) Drive(ctx context.Context, runId string) (RunResult, error) {
	result := RunResult{RunId: runId}
	if d.progress != nil {
		defer d.progress.Stop()
	}

	run, err := d.session.GetRunStatus(ctx, runId)
	if err != nil {
		return result, contextOr(ctx, err)
	}
	result.Polls = 1

	for {
		result.Status = run.Status
		log.Debug(fmt.Sprintf("run %s status %s (poll %d)", runId, run.Status, result.Polls))

		switch {
		case run.Status == RunStatusRequiresAction:
			outputs, err := d.dispatch(ctx, run.ToolCalls)
			if err != nil {
				return result, err
			}
			if err := d.session.SubmitToolOutputs(ctx, runId, outputs); err != nil {
				return result, contextOr(ctx, err)
			}
			result.ToolRounds++
			log.Debug(fmt.Sprintf("submitted %d tool outputs for run %s", len(outputs), runId))

		case run.Status == RunStatusCompleted:
			return result, nil

		case run.Status.IsTerminal():
			return result, RunTerminalError{
				RunId:  runId,
				Status: run.Status,
				Reason: run.LastError,
			}
		}

		if d.maxPolls > 0 && result.Polls >= d.maxPolls {
			return result, fmt.Errorf("run %s: %w (%d polls)", runId, ErrPollLimitExceeded, result.Polls)
		}

		d.report(fmt.Sprintf("Waiting for assistant (%s) ", run.Status))
		if err := d.sleep(ctx, d.interval); err != nil {
			return result, err
		}

		run, err = d.session.GetRunStatus(ctx, runId)
		if err != nil {
			return result, contextOr(ctx, err)
		}
		result.Polls++
	}
}

// Stop cancels a run that Drive gave up on and waits for it to reach a
// terminal status, so that a new run can be started on the thread. A
// failed cancel request is ignored when the run already finished. Every
// error returned matches ErrRunNotStopped.
func (d *RunDriver) Stop(ctx context.Context, runId string) (RunStatus, error) {
	cancelErr := d.session.CancelRun(ctx, runId)
	if cancelErr != nil {
		log.Debug(fmt.Sprintf("error cancelling run %s: %+v", runId, cancelErr))
	}

	var status RunStatus
	for polls := 1; polls <= maxStopPolls; polls++ {
		run, err := d.session.GetRunStatus(ctx, runId)
		if err != nil {
			return status, fmt.Errorf("run %s: %w: %w", runId, ErrRunNotStopped, err)
		}
		status = run.Status
		if run.Status.IsTerminal() {
			log.Info(fmt.Sprintf("run %s stopped with status %s", runId, run.Status))
			return run.Status, nil
		}
		if cancelErr != nil {
			return run.Status, fmt.Errorf("run %s: %w: %w", runId, ErrRunNotStopped, cancelErr)
		}
		if err := d.sleep(ctx, d.interval); err != nil {
			return run.Status, fmt.Errorf("run %s: %w: %w", runId, ErrRunNotStopped, err)
		}
	}
	return status, fmt.Errorf("run %s: %w", runId, ErrRunNotStopped)
}

// dispatch resolves every call of a batch. Outputs keep the order of
// calls. A failing capability cancels the rest and nothing is returned.
func (d *RunDriver) dispatch(ctx context.Context, calls []PendingToolCall) ([]ToolOutput, error) {
	outputs := make([]ToolOutput, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, call := range calls {
		g.Go(func() error {
			output, err := d.invoke(gctx, call)
			if err != nil {
				return err
			}
			outputs[i] = ToolOutput{ToolCallId: call.Id, Output: output}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func (d *RunDriver) invoke(ctx context.Context, call PendingToolCall) (string, error) {
	log.Info(fmt.Sprintf("This question requires us to call a function: %s", call.Name))
	d.report(fmt.Sprintf("Calling %s ", call.Name))

	args, err := parseToolArguments(call.Arguments)
	if err != nil {
		return dispatchErrorOutput(DispatchError{
			CallId: call.Id,
			Name:   call.Name,
			Kind:   DispatchInvalidArguments,
			Err:    err,
		})
	}

	capability, err := d.registry.Resolve(call.Name)
	if err != nil {
		return dispatchErrorOutput(DispatchError{
			CallId: call.Id,
			Name:   call.Name,
			Kind:   DispatchUnknownFunction,
			Err:    err,
		})
	}

	output, err := capability.Invoke(ctx, args)
	if err != nil {
		return "", ToolInvocationError{CallId: call.Id, Name: call.Name, Err: err}
	}
	return output, nil
}

func (d *RunDriver) report(message string) {
	if d.progress != nil {
		d.progress.Update(message)
	}
}

// parseToolArguments decodes the JSON arguments of a tool call, which
// must be an object.
func parseToolArguments(raw string) (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		return nil, errors.New("arguments must be a JSON object")
	}
	return args, nil
}

// dispatchErrorOutput renders a dispatch failure as the call's output.
func dispatchErrorOutput(dispatchErr DispatchError) (string, error) {
	log.Warn(dispatchErr.Error())
	return marshalToolResponse(dispatchErr.Name, nil, dispatchErr)
}

// contextOr prefers the context error over err once ctx is done, so an
// expired deadline reads the same wherever it interrupts the loop.
func contextOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
