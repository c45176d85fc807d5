package ipmi

import (
	"bytes"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
)

// outputReader accumulates the subprocess output stream and splits it into
// prompt-delimited responses. A pump goroutine moves bytes off the pipe so
// that waiting for a delimiter can race against a timeout.
type outputReader struct {
	file   *os.File
	chunks chan []byte
	buf    bytes.Buffer
}

func newOutputReader(file *os.File) *outputReader {
	o := &outputReader{
		file:   file,
		chunks: make(chan []byte, 1),
	}
	go o.pump()

	return o
}

func (o *outputReader) pump() {
	defer close(o.chunks)

	buf := make([]byte, 4096)
	for {
		n, err := o.file.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			o.chunks <- chunk
		}
		if err != nil {
			return
		}
	}
}

// waitPrompt reads until the prompt string appears and returns everything
// before it. Output past the prompt is kept for the next call.
func (o *outputReader) waitPrompt(prompt string, timeout time.Duration) (string, error) {
	errFactory := errors.New()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if body, ok := o.takeResponse(prompt); ok {
			return body, nil
		}

		select {
		case chunk, ok := <-o.chunks:
			if !ok {
				return "", errFactory.New(ErrProcessExited)
			}
			o.buf.Write(chunk)
		case <-timer.C:
			return "", errFactory.WithData(ErrPromptTimeout, timeout.String())
		}
	}
}

func (o *outputReader) takeResponse(prompt string) (string, bool) {
	data := o.buf.String()
	i := strings.Index(data, prompt)
	if i < 0 {
		return "", false
	}

	body := data[:i]
	rest := data[i+len(prompt):]
	o.buf.Reset()
	o.buf.WriteString(rest)

	return body, true
}

// stop closes the read end of the pipe, unblocking and ending the pump.
func (o *outputReader) stop() {
	o.file.Close()

	// Drain so the pump is not stuck on a full channel.
	for range o.chunks {
	}
}
