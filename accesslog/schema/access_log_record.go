package schema

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/c3b5aw/webserv/message"
)

const targetColumnWidth = 20

// AccessLogRecord represents a single access log line.
type AccessLogRecord struct {
	StartedAt  time.Time
	FinishedAt time.Time

	Method     message.Method
	Target     string
	StatusCode message.StatusCode

	ClientIP string
	ServerIP string

	record []byte
}

// paddedTarget truncates or right-pads the request target to a fixed
// column so log lines align.
func (r *AccessLogRecord) paddedTarget() string {
	if len(r.Target) > targetColumnWidth {
		return r.Target[:targetColumnWidth-2] + ".."
	}
	return r.Target + spaces(targetColumnWidth-len(r.Target))
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

func (r *AccessLogRecord) duration() string {
	d := r.FinishedAt.Sub(r.StartedAt)
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%d s", int(d/time.Second))
	case d >= time.Millisecond:
		return fmt.Sprintf("%d ms", int(d/time.Millisecond))
	default:
		return fmt.Sprintf("%d µs", int(d/time.Microsecond))
	}
}

func (r *AccessLogRecord) getRecord() []byte {
	if len(r.record) == 0 {
		r.record = r.makeRecord()
	}
	return r.record
}

func (r *AccessLogRecord) makeRecord() []byte {
	b := new(bytes.Buffer)
	b.WriteString(r.StartedAt.Format("2006/01/02 - 15:04:05"))
	b.WriteString(" | ")
	b.WriteString(fmt.Sprintf("%-7s", r.Method.String()))
	b.WriteString(" | ")
	b.WriteString(r.paddedTarget())
	b.WriteString(" | ")
	b.WriteString(strconv.Itoa(int(r.StatusCode)))
	b.WriteString(" | ")
	b.WriteString(fmt.Sprintf("%10s", r.duration()))
	b.WriteString(" | ")
	b.WriteString(r.ClientIP)
	b.WriteString(" -> ")
	b.WriteString(r.ServerIP)
	return b.Bytes()
}

// WriteTo writes the formatted record to the writer.
func (r *AccessLogRecord) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.getRecord())
	return int64(n), err
}
