// Package memcodec serves net/rpc calls without a connection.
package memcodec

import (
	"errors"
	"fmt"
	"net/rpc"
	"reflect"
)

// ErrNilArgs is returned when a call without args reaches a method.
var ErrNilArgs = errors.New("memcodec: args cannot be nil")

// ServerError is an error returned by the called method.
type ServerError string

// Error returns the error message.
func (e ServerError) Error() string {
	return string(e)
}

// Serve serves a single call on the server, returning the
// error of the method if any.
func Serve(srv *rpc.Server, method string, args, reply interface{}) error {
	c := NewCall(method, args, reply)
	if err := srv.ServeRequest(c); err != nil {
		return err
	}
	return c.err
}

// Call is a single in-memory call. It implements rpc.ServerCodec.
type Call struct {
	method string
	args   interface{}
	reply  interface{}

	err error
}

// NewCall returns a call of method with args, writing the
// result into reply.
func NewCall(method string, args, reply interface{}) *Call {
	return &Call{
		method: method,
		args:   args,
		reply:  reply,
	}
}

// ReadRequestHeader reads the request header.
func (c *Call) ReadRequestHeader(req *rpc.Request) error {
	req.ServiceMethod = c.method
	return nil
}

// ReadRequestBody copies the call args into the method args.
func (c *Call) ReadRequestBody(body interface{}) error {
	if body == nil {
		// The server discards the body of an unknown method.
		return nil
	}
	if c.args == nil {
		return ErrNilArgs
	}
	return assign(body, c.args)
}

// WriteResponse copies the method reply into the call reply.
func (c *Call) WriteResponse(resp *rpc.Response, reply interface{}) error {
	if resp.Error != "" {
		c.err = ServerError(resp.Error)
		return nil
	}
	return assign(c.reply, reply)
}

// Close closes the call.
func (c *Call) Close() error {
	return nil
}

// assign copies the value src points at into the value dst points at.
func assign(dst, src interface{}) error {
	d := reflect.ValueOf(dst)
	if d.Kind() != reflect.Ptr || d.IsNil() {
		return fmt.Errorf("memcodec: cannot write into %T", dst)
	}

	s := reflect.Indirect(reflect.ValueOf(src))
	if !s.IsValid() || !s.Type().AssignableTo(d.Elem().Type()) {
		return fmt.Errorf("memcodec: cannot assign %T to %T", src, dst)
	}

	d.Elem().Set(s)
	return nil
}
