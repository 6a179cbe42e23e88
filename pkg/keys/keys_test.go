package keys

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func collect(ch <-chan rune) []rune {
	var out []rune
	for k := range ch {
		out = append(out, k)
	}
	return out
}

func TestReadKeys(t *testing.T) {
	keys := make(chan rune, 16)
	readKeys(strings.NewReader("c1 p\x03"), keys, make(chan struct{}))

	assert.Equal(t, []rune{'c', '1', ' ', 'p', esc}, collect(keys))
}

func TestReadKeysStop(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	keys := make(chan rune) // unbuffered: the send blocks until stop
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		readKeys(pr, keys, stop)
		close(done)
	}()

	go pw.Write([]byte("q"))
	time.Sleep(10 * time.Millisecond)
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("readKeys did not stop")
	}
}
