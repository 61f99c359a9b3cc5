package utils

import (
	"sync"
	"unsafe"
)

var interned sync.Map

// Intern returns a shared copy of buf. Use it for low-cardinality values such
// as methods and header names that outlive the request as map keys or labels.
func Intern(buf []byte) string {
	if v, ok := interned.Load(string(buf)); ok {
		return v.(string)
	}

	s := string(buf)
	actual, _ := interned.LoadOrStore(s, s)
	return actual.(string)
}

// BytesToString aliases b without copying. The result is only valid while b
// is, so it must not escape the request.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}
