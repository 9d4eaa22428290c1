package debugger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/scopectl/internal/observability"
	"github.com/danmuck/scopectl/internal/protocol/schema"
	"github.com/danmuck/scopectl/internal/protocol/session"
)

// locatorVar is the variable name an object is bound to by the *OnObject calls.
const locatorVar = "locator"

// ExecuteScript evaluates src with args and decodes the result.
func (d *Debugger) ExecuteScript(ctx context.Context, src string, args ...Arg) (Value, error) {
	return d.Evaluate(ctx, src, args, true)
}

// Evaluate sends script to the active runtime. Missing responses are retried
// with backoff against the runtime captured when the call started. With
// expectResponse false the reply is not decoded.
func (d *Debugger) Evaluate(ctx context.Context, script string, args []Arg, expectResponse bool) (Value, error) {
	wrapped, vars, err := wrapScript(script, args, d.objectGen.Load())
	if err != nil {
		return Value{}, err
	}
	return d.run(ctx, wrapped, vars, expectResponse)
}

// ExecuteJavascript returns the string form of the result; ok is false when
// the script produced undefined or null.
func (d *Debugger) ExecuteJavascript(ctx context.Context, src string) (string, bool, error) {
	v, err := d.ExecuteScript(ctx, src)
	if err != nil || v.Absent() {
		return "", false, err
	}
	return v.String(), true, nil
}

// GetObjectForExpression returns the object src evaluates to, if any.
func (d *Debugger) GetObjectForExpression(ctx context.Context, src string) (ObjectRef, bool, error) {
	v, err := d.ExecuteScript(ctx, src)
	if err != nil || v.Kind != KindObject {
		return ObjectRef{}, false, err
	}
	return v.Object, true, nil
}

// CallFunctionOnObject evaluates script with ref bound to "locator".
func (d *Debugger) CallFunctionOnObject(ctx context.Context, script string, ref ObjectRef, expectResponse bool) (Value, error) {
	if err := ref.check(d.objectGen.Load()); err != nil {
		return Value{}, err
	}
	vars := []session.Variable{{Name: locatorVar, ObjectID: ref.ID}}
	return d.run(ctx, script, vars, expectResponse)
}

// ExecuteScriptOnObject is CallFunctionOnObject for scripts that yield an
// object.
func (d *Debugger) ExecuteScriptOnObject(ctx context.Context, script string, ref ObjectRef) (ObjectRef, bool, error) {
	v, err := d.CallFunctionOnObject(ctx, script, ref, true)
	if err != nil || v.Kind != KindObject {
		return ObjectRef{}, false, err
	}
	return v.Object, true, nil
}

// ExamineChildObjects lists the object-typed properties of ref in property
// order.
func (d *Debugger) ExamineChildObjects(ctx context.Context, ref ObjectRef) ([]ObjectRef, error) {
	generation := d.objectGen.Load()
	if err := ref.check(generation); err != nil {
		return nil, err
	}
	resp, err := d.send(ctx, schema.CmdExamineObjects, session.ExamineList{
		RuntimeID: d.RuntimeID(),
		ObjectIDs: []uint32{ref.ID},
	})
	if err != nil {
		return nil, err
	}
	list, err := session.UnmarshalObjectList(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocolDecode, err)
	}
	var out []ObjectRef
	for _, obj := range list.Objects {
		for _, p := range obj.Properties {
			if p.Type != "object" || p.Object == nil {
				continue
			}
			out = append(out, ObjectRef{ID: p.Object.ObjectID, ClassName: p.Object.ClassName, Generation: generation})
		}
	}
	return out, nil
}

// ReleaseAllObjects lets the host collect every object handed out so far.
// Every earlier ObjectRef becomes stale, even if the request fails.
func (d *Debugger) ReleaseAllObjects(ctx context.Context) error {
	gen := d.objectGen.Add(1)
	d.log.Debug().Uint64("generation", gen).Msg("releasing objects")
	if _, err := d.send(ctx, schema.CmdReleaseObjects, session.Default{}); err != nil {
		return fmt.Errorf("debugger: release objects: %w", err)
	}
	return nil
}

func (d *Debugger) run(ctx context.Context, script string, vars []session.Variable, expectResponse bool) (Value, error) {
	start := time.Now()
	v, err := d.runOnce(ctx, script, vars, expectResponse)
	observability.RecordEval(outcomeOf(err), time.Since(start))
	return v, err
}

func (d *Debugger) runOnce(ctx context.Context, script string, vars []session.Variable, expectResponse bool) (Value, error) {
	runtimeID, err := d.targetRuntime(ctx)
	if err != nil {
		return Value{}, err
	}
	generation := d.objectGen.Load()
	resp, err := d.evalWithRetry(ctx, runtimeID, script, vars)
	if err != nil {
		return Value{}, err
	}
	if !expectResponse {
		return Value{}, nil
	}
	res, err := session.UnmarshalEvalResult(resp)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %w", ErrProtocolDecode, err)
	}
	return decodeResult(res, generation)
}

// targetRuntime re-syncs when focus moved to another window and returns the
// runtime id this call will use for every attempt.
func (d *Debugger) targetRuntime(ctx context.Context) (uint32, error) {
	active := d.active.Load()
	if active != nil && active.WindowID == d.windows.ActiveWindowID() {
		return active.ID, nil
	}
	return d.resync(ctx)
}

func (d *Debugger) resync(ctx context.Context) (uint32, error) {
	if _, err := d.windows.FilterActiveWindow(ctx); err != nil {
		return 0, fmt.Errorf("debugger: active window: %w", err)
	}
	list, err := d.listRuntimes(ctx)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	wid := d.windows.ActiveWindowID()
	top, err := d.adoptRuntimesLocked(list, wid)
	if err != nil {
		return 0, err
	}
	d.log.Info().Uint32("window", wid).Uint32("runtime", top.ID).Msg("re-synced to focused window")
	return top.ID, nil
}

func (d *Debugger) evalWithRetry(ctx context.Context, runtimeID uint32, script string, vars []session.Variable) ([]byte, error) {
	payload, err := session.Marshal(session.EvalData{
		RuntimeID:  runtimeID,
		ScriptData: script,
		Variables:  vars,
	})
	if err != nil {
		return nil, err
	}
	backoff := d.cfg.backoff()
	for attempt := 1; ; attempt++ {
		resp, err := d.dispatcher.Send(ctx, schema.CmdEval, payload, d.cfg.ResponseTimeout)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, session.ErrNoResponse) {
			return nil, err
		}
		if attempt >= d.cfg.ScriptRetry {
			return nil, fmt.Errorf("%w: no eval response after %d attempts: %v", ErrInternal, attempt, err)
		}
		delay := session.NextBackoffDelay(backoff, attempt, nil)
		observability.RecordEvalRetry()
		d.log.Warn().Uint32("runtime", runtimeID).Int("attempt", attempt).Dur("delay", delay).Msg("eval got no response, retrying")
		if err := d.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, ErrScriptException):
		return observability.OutcomeException
	case errors.Is(err, ErrAborted):
		return observability.OutcomeAborted
	case errors.Is(err, ErrInternal):
		return observability.OutcomeExhausted
	default:
		return observability.OutcomeError
	}
}
