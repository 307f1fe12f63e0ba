// Package handler binds typed handler functions to a container: each handler
// becomes a listener that decodes the raw payload into the handler's
// argument type before calling it.
package handler

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/srediag/plugin-mq/pkg/codec"
)

// Kind is how a payload is turned into a handler argument.
type Kind int

const (
	// KindRaw passes the payload bytes unchanged.
	KindRaw Kind = iota
	// KindText converts the payload to a UTF-8 string.
	KindText
	// KindStructured decodes the payload with the engine codec.
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindText:
		return "text"
	case KindStructured:
		return "structured"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Method is one bindable handler. Build it with On, OnDefault, OnSignal or
// OnSignalDefault; it is immutable afterwards.
type Method struct {
	Name string
	// Default marks the fallback handler. At most one per source.
	Default bool
	Kind    Kind
	// Param is the declared argument type, "" for signal handlers.
	Param string

	call func(ctx context.Context, payload []byte, c codec.Codec) error
}

// HandlerSource is anything that can list its handlers.
type HandlerSource interface {
	Handlers() []Method
}

// Methods is a literal HandlerSource.
type Methods []Method

func (m Methods) Handlers() []Method { return m }

// On binds fn under name. The argument kind follows T: []byte is raw, string
// is text, anything else is decoded with the engine codec.
func On[T any](name string, fn func(ctx context.Context, arg T) error) Method {
	return build(name, false, fn)
}

// OnDefault is On for the fallback handler.
func OnDefault[T any](name string, fn func(ctx context.Context, arg T) error) Method {
	return build(name, true, fn)
}

// OnSignal binds a handler that takes no argument. It is raw-typed and runs
// for every message with the payload ignored.
func OnSignal(name string, fn func(ctx context.Context) error) Method {
	return signal(name, false, fn)
}

// OnSignalDefault is OnSignal for the fallback handler.
func OnSignalDefault(name string, fn func(ctx context.Context) error) Method {
	return signal(name, true, fn)
}

func build[T any](name string, def bool, fn func(context.Context, T) error) Method {
	m := Method{
		Name:    name,
		Default: def,
		Kind:    kindOf[T](),
		Param:   reflect.TypeFor[T]().String(),
	}
	if fn != nil {
		m.call = func(ctx context.Context, payload []byte, c codec.Codec) error {
			arg, err := decode[T](payload, c)
			if err != nil {
				return &DecodeError{Method: name, Kind: m.Kind, Err: err}
			}
			return invoke(ctx, name, func(ctx context.Context) error { return fn(ctx, arg) })
		}
	}
	return m
}

func signal(name string, def bool, fn func(context.Context) error) Method {
	m := Method{Name: name, Default: def, Kind: KindRaw}
	if fn != nil {
		m.call = func(ctx context.Context, _ []byte, _ codec.Codec) error {
			return invoke(ctx, name, fn)
		}
	}
	return m
}

func kindOf[T any]() Kind {
	switch any(*new(T)).(type) {
	case []byte:
		return KindRaw
	case string:
		return KindText
	default:
		return KindStructured
	}
}

func decode[T any](payload []byte, c codec.Codec) (T, error) {
	var v T
	switch p := any(&v).(type) {
	case *[]byte:
		*p = payload
		return v, nil
	case *string:
		*p = strings.ToValidUTF8(string(payload), "\uFFFD")
		return v, nil
	}
	// pointer targets get a fresh value so proto messages are never nil
	var target any = &v
	if t := reflect.TypeFor[T](); t.Kind() == reflect.Pointer {
		v = reflect.New(t.Elem()).Interface().(T)
		target = v
	}
	if err := c.Unmarshal(payload, target); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func invoke(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InvocationError{Method: name, Panic: r, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(ctx); err != nil {
		return &InvocationError{Method: name, Err: err}
	}
	return nil
}
