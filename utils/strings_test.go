package utils

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestIntern(t *testing.T) {
	first := Intern([]byte("GET"))
	second := Intern([]byte("GET"))

	assert.Equal(t, "GET", first)
	assert.Equal(t, unsafe.StringData(first), unsafe.StringData(second))
	assert.Equal(t, "", Intern(nil))
}

func TestBytesToString(t *testing.T) {
	buf := []byte("X-Real-IP")
	s := BytesToString(buf)
	assert.Equal(t, "X-Real-IP", s)

	buf[0] = 'Y'
	assert.Equal(t, "Y-Real-IP", s)
	assert.Equal(t, "", BytesToString(nil))
}
