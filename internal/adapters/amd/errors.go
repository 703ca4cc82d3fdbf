package amd

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// ScriptError 描述产物在编译、运行或工厂调用时抛出的错误。Message 是 JS 错误的 message。
type ScriptError struct {
	URL     string
	Message string
}

func (e *ScriptError) Error() string {
	return e.Message
}

func scriptError(url string, err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return &ScriptError{URL: url, Message: exceptionMessage(ex)}
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return &ScriptError{URL: url, Message: fmt.Sprintf("interrupted: %v", interrupted.Value())}
	}
	return &ScriptError{URL: url, Message: err.Error()}
}

// exceptionMessage 优先取抛出对象的 message 属性，与 JS 中 err.message 一致。
func exceptionMessage(ex *goja.Exception) string {
	v := ex.Value()
	if v == nil {
		return ex.Error()
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return msg.String()
		}
	}
	return v.String()
}
