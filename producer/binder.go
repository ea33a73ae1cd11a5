package producer

import (
	"fmt"
	"reflect"
	"strings"
)

// binder applies one parameter of a call to the invocation being built
type binder func(inv *Invocation) error

// buildBinders derives one binder per parameter, in parameter order
func buildBinders(method MethodID, params []Param) ([]binder, error) {
	binders := make([]binder, 0, len(params))
	bodyIndex := -1

	for i, param := range params {
		switch param.Kind {
		case ParamBody:
			if bodyIndex >= 0 {
				return nil, fmt.Errorf("%w: %q and %q", ErrMultipleBodies, params[bodyIndex].Name, param.Name)
			}
			bodyIndex = i
			binders = append(binders, bodyBinder(i))

		case ParamHeader:
			name := param.Header
			if strings.TrimSpace(name) == "" {
				name = param.Name
			}
			if strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf("%w: header parameter %d has no name", ErrInvalidInterface, i)
			}
			binders = append(binders, headerBinder(i, name))

		case ParamHeaders:
			binders = append(binders, headersBinder(method, i, param.Name))

		default:
			return nil, fmt.Errorf("%w: parameter %d has unknown kind %d", ErrInvalidInterface, i, param.Kind)
		}
	}

	return binders, nil
}

func bodyBinder(index int) binder {
	return func(inv *Invocation) error {
		inv.SetBody(inv.Arg(index))
		return nil
	}
}

func headerBinder(index int, name string) binder {
	return func(inv *Invocation) error {
		value := inv.Arg(index)
		if value == nil {
			return nil
		}
		inv.SetHeader(name, stringify(value))
		return nil
	}
}

func headersBinder(method MethodID, index int, paramName string) binder {
	return func(inv *Invocation) error {
		arg := inv.Arg(index)
		if arg == nil {
			return nil
		}

		switch m := arg.(type) {
		case map[string]interface{}:
			for k, v := range m {
				if v == nil {
					continue
				}
				inv.SetHeader(k, v)
			}
			return nil
		case map[string]string:
			for k, v := range m {
				inv.SetHeader(k, v)
			}
			return nil
		}

		v := reflect.ValueOf(arg)
		if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
			return &BindingError{
				Method: method,
				Param:  paramName,
				Index:  index,
				Err:    fmt.Errorf("%w: got %T", ErrNotAMap, arg),
			}
		}
		if v.IsNil() {
			return nil
		}

		iter := v.MapRange()
		for iter.Next() {
			value := iter.Value()
			if isNilValue(value) {
				continue
			}
			inv.SetHeader(iter.Key().String(), value.Interface())
		}
		return nil
	}
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// stringify renders a header argument as a string
func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
