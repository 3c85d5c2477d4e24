package idempotency

import (
	"bytes"
	"net/http"
)

// capture buffers a handler's response so it can be stored before the client sees it.
type capture struct {
	header http.Header
	code   int
	buf    bytes.Buffer
}

func newCapture() *capture {
	return &capture{header: make(http.Header)}
}

func (c *capture) Header() http.Header { return c.header }

func (c *capture) WriteHeader(status int) {
	if c.code == 0 && status > 0 {
		c.code = status
	}
}

func (c *capture) Write(p []byte) (int, error) {
	c.WriteHeader(http.StatusOK)
	return c.buf.Write(p)
}

func (c *capture) status() int {
	if c.code == 0 {
		return http.StatusOK
	}
	return c.code
}

func (c *capture) response() Response {
	return Response{Status: c.status(), Headers: c.header.Clone(), Body: bytes.Clone(c.buf.Bytes())}
}

func (c *capture) writeTo(w http.ResponseWriter) error {
	dst := w.Header()
	for name, values := range c.header {
		dst[name] = values
	}
	w.WriteHeader(c.status())
	if c.buf.Len() == 0 {
		return nil
	}
	_, err := w.Write(c.buf.Bytes())
	return err
}
