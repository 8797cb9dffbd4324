package hgt

import (
	"strconv"
	"strings"
)

// A Method is an interpolation method.
type Method int

const (
	MethodNone Method = iota
	MethodNearest
	MethodLinear
	MethodCubic
)

// Methods lists all methods in their canonical order.
var Methods = []Method{MethodNone, MethodNearest, MethodLinear, MethodCubic}

var methodNames = [...]string{
	MethodNone:    "none",
	MethodNearest: "nearest",
	MethodLinear:  "linear",
	MethodCubic:   "cubic",
}

// An InvalidMethodError is returned for an unknown interpolation method name.
type InvalidMethodError struct {
	Name string
}

func (e *InvalidMethodError) Error() string {
	names := make([]string, len(Methods))
	for i, m := range Methods {
		names[i] = strconv.Quote(m.String())
	}
	return "interpolation must be one of [" + strings.Join(names, ", ") + "], got " + strconv.Quote(e.Name)
}

// ParseMethod returns the method named name.
func ParseMethod(name string) (Method, error) {
	for _, m := range Methods {
		if methodNames[m] == name {
			return m, nil
		}
	}
	return 0, &InvalidMethodError{Name: name}
}

func (m Method) valid() bool {
	return 0 <= m && int(m) < len(methodNames)
}

func (m Method) String() string {
	if !m.valid() {
		return "Method(" + strconv.Itoa(int(m)) + ")"
	}
	return methodNames[m]
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	method, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = method
	return nil
}
