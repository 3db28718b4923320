package doc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Invoke executes a document function on the current logical thread. The
// function body is a Starlark script; the script's `result` global, if set,
// becomes the invocation's return value.
//
// The executing script sees the document through `self` (a data snapshot of
// the root scope) and through the get/set builtins, which read and mutate
// the live handle. Asynchronous work is available through fetch/spawn/await,
// all of which delegate to the supplied host.
func (d *Document) Invoke(ctx context.Context, fn *Function, host Host, args map[string]any) (any, error) {
	thread := &starlark.Thread{
		Name: fn.Path,
		Print: func(_ *starlark.Thread, msg string) {
			host.Print(msg)
		},
	}

	// Cancel the script when the invocation context is cancelled.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-watchDone:
		}
	}()

	predeclared, err := d.predeclared(fn, host, args)
	if err != nil {
		return nil, err
	}

	globals, err := starlark.ExecFile(thread, fn.Path+".star", fn.Body, predeclared)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return nil, &scriptError{path: fn.Path, backtrace: evalErr.Backtrace(), err: err}
		}
		return nil, fmt.Errorf("%s: %w", fn.Path, err)
	}

	if result, ok := globals["result"]; ok {
		return fromStarlarkValue(result)
	}
	return nil, nil
}

// predeclared builds the execution environment for one function invocation.
func (d *Document) predeclared(fn *Function, host Host, args map[string]any) (starlark.StringDict, error) {
	self, err := toStarlarkValue(scopeValueMap(d.Root))
	if err != nil {
		return nil, fmt.Errorf("failed to project document into self: %w", err)
	}

	env := starlark.StringDict{
		"struct":  starlarkstruct.Default,
		"self":    self,
		"pln":     starlark.NewBuiltin("pln", builtinPrintLine(host.Print)),
		"errln":   starlark.NewBuiltin("errln", builtinPrintLine(host.Errorln)),
		"fetch":   starlark.NewBuiltin("fetch", builtinFetch(host)),
		"spawn":   starlark.NewBuiltin("spawn", builtinSpawn(d, host)),
		"await":   starlark.NewBuiltin("await", builtinAwait(host)),
		"get":     starlark.NewBuiltin("get", builtinGet(d)),
		"set":     starlark.NewBuiltin("set", builtinSet(d)),
		"unit":    starlark.NewBuiltin("unit", builtinUnit),
		"blobify": starlark.NewBuiltin("blobify", builtinBlobify),
	}

	for key, val := range args {
		sv, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert argument %s: %w", key, err)
		}
		env[key] = sv
	}

	return env, nil
}

// scriptError carries a failed script's backtrace while keeping the
// underlying cause reachable through the error chain.
type scriptError struct {
	path      string
	backtrace string
	err       error
}

func (e *scriptError) Error() string { return fmt.Sprintf("%s: %s", e.path, e.backtrace) }
func (e *scriptError) Unwrap() error { return e.err }

// taskValue is the opaque Starlark handle for a spawned task.
type taskValue struct {
	id TaskID
}

func (t taskValue) String() string        { return fmt.Sprintf("task(%d)", t.id) }
func (t taskValue) Type() string          { return "task" }
func (t taskValue) Freeze()               {}
func (t taskValue) Truth() starlark.Bool  { return starlark.True }
func (t taskValue) Hash() (uint32, error) { return uint32(t.id), nil }

// builtinPrintLine implements pln/errln: stringify all arguments and emit
// one space-joined output line.
func builtinPrintLine(emit func(string)) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		parts := make([]string, len(args))
		for i, arg := range args {
			if s, ok := starlark.AsString(arg); ok {
				parts[i] = s
			} else {
				parts[i] = arg.String()
			}
		}
		emit(strings.Join(parts, " "))
		return starlark.None, nil
	}
}

// builtinFetch implements fetch(url, username="", password=""): registers an
// asynchronous remote fetch and returns its task handle.
func builtinFetch(host Host) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var url, username, password string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs,
			"url", &url, "username?", &username, "password?", &password); err != nil {
			return nil, err
		}
		var creds *FetchCredentials
		if username != "" || password != "" {
			creds = &FetchCredentials{Username: username, Password: password}
		}
		id, err := host.SpawnFetch(url, creds)
		if err != nil {
			return nil, err
		}
		return taskValue{id: id}, nil
	}
}

// builtinSpawn implements spawn(callable): registers a cooperative document
// task that calls the given no-argument callable when scheduled.
func builtinSpawn(d *Document, host Host) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var callable starlark.Callable
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "fn", &callable); err != nil {
			return nil, err
		}
		id, err := host.SpawnCall(callable.Name(), func(ctx context.Context) (any, error) {
			taskThread := &starlark.Thread{
				Name: callable.Name(),
				Print: func(_ *starlark.Thread, msg string) {
					host.Print(msg)
				},
			}
			out, err := starlark.Call(taskThread, callable, nil, nil)
			if err != nil {
				return nil, err
			}
			return fromStarlarkValue(out)
		})
		if err != nil {
			return nil, err
		}
		return taskValue{id: id}, nil
	}
}

// builtinAwait implements await(task): suspends the logical thread until the
// task resolves and returns its value.
func builtinAwait(host Host) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) != 1 || len(kwargs) != 0 {
			return nil, fmt.Errorf("%s: expected exactly one task argument", b.Name())
		}
		task, ok := args[0].(taskValue)
		if !ok {
			return nil, fmt.Errorf("%s: argument is not a task", b.Name())
		}
		out, err := host.Await(task.id)
		if err != nil {
			return nil, err
		}
		return toStarlarkValue(out)
	}
}

// builtinGet implements get(path): reads a field from the live handle.
func builtinGet(d *Document) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path); err != nil {
			return nil, err
		}
		v, ok := d.Lookup(path)
		if !ok {
			return starlark.None, nil
		}
		return toStarlarkValue(v)
	}
}

// builtinSet implements set(path, value): mutates the live handle. Only ever
// called from the logical execution thread, so handle access stays serial.
func builtinSet(d *Document) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		var value starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "value", &value); err != nil {
			return nil, err
		}
		v, err := fromStarlarkValue(value)
		if err != nil {
			return nil, err
		}
		if err := d.Set(path, v); err != nil {
			return nil, err
		}
		return starlark.None, nil
	}
}

// builtinUnit implements unit(value, from, to): converts between units.
func builtinUnit(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	var from, to string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &value, "from", &from, "to", &to); err != nil {
		return nil, err
	}
	f, ok := starlark.AsFloat(value)
	if !ok {
		return nil, fmt.Errorf("%s: value must be numeric", b.Name())
	}
	out, err := ConvertUnit(f, from, to)
	if err != nil {
		return nil, err
	}
	return starlark.Float(out), nil
}

// builtinBlobify implements blobify(value, format="json"): serializes a value
// into a byte blob. JSON is the only built-in blob encoding.
func builtinBlobify(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	blobFormat := "json"
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &value, "format?", &blobFormat); err != nil {
		return nil, err
	}
	if blobFormat != "json" {
		return nil, fmt.Errorf("%s: unsupported blob format %q", b.Name(), blobFormat)
	}
	v, err := fromStarlarkValue(value)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.Bytes(data), nil
}

// toStarlarkValue converts a document value into a Starlark value.
func toStarlarkValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []byte:
		return starlark.Bytes(val), nil
	case Quantity:
		return starlark.Float(val.Value), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// fromStarlarkValue converts a Starlark value back into the document value
// model.
func fromStarlarkValue(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case starlark.Bytes:
		return []byte(val), nil
	case taskValue:
		return nil, fmt.Errorf("task handles cannot leave the execution context")
	case *starlark.List:
		list := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]any, len(val))
		for i, item := range val {
			out, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = out
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type %s", v.Type())
	}
}
