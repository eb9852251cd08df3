package testutils

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamBody(t *testing.T) {
	type testcase struct {
		content   string
		chunkSize int
		expected  []string
	}
	tests := []testcase{
		{"abcdefg", 3, []string{"abc", "def", "g"}},
		{"abcdef", 3, []string{"abc", "def"}},
		{"abc", 10, []string{"abc"}},
		{"abc", 0, []string{"abc"}},
		{"", 4, []string{""}},
	}

	var b strings.Builder
	for _, test := range tests {
		var chunks []string
		eosCount := 0
		write := func(chunk []byte, eos bool) error {
			chunks = append(chunks, string(chunk))
			if eos {
				eosCount++
			}
			return nil
		}

		err := StreamBody(write, []byte(test.content), test.chunkSize)

		if err != nil || eosCount != 1 || !assert.ObjectsAreEqual(test.expected, chunks) {
			fmt.Fprintf(&b, "Unexpected chunks for %q in chunks of %d: %q, end of stream flagged %d times, err %v\n", test.content, test.chunkSize, chunks, eosCount, err)
		}
	}

	if b.Len() > 0 {
		t.Fatalf("%s", b.String())
	}
}

func TestStreamBodyStopsOnError(t *testing.T) {
	assert := assert.New(t)
	boom := errors.New("boom")
	calls := 0
	write := func(chunk []byte, eos bool) error {
		calls++
		return boom
	}

	err := StreamBody(write, []byte("abcdef"), 2)

	assert.Equal(boom, err)
	assert.Equal(1, calls)
}

func TestRepeatedBody(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("hello,hel", string(RepeatedBody("hello,", 9)))
	assert.Len(RepeatedBody("x", 2*1024*1024), 2*1024*1024)
	assert.Empty(RepeatedBody("", 5))
	assert.Empty(RepeatedBody("x", 0))
}
