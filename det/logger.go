package det

import (
	"io"
	"sync"

	"mcal-go/x/conv"
)

// Logger writes one text line per report. It avoids fmt so it can run on
// targets without a formatter.
type Logger struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
}

func NewLogger(w io.Writer) *Logger {
	return &Logger{w: w, buf: make([]byte, 0, 96)}
}

func (l *Logger) ReportError(module uint16, instance, service, code uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := append(l.buf[:0], "det: module="...)
	b = conv.AppendUint(b, uint64(module))
	b = append(b, " instance="...)
	b = conv.AppendUint(b, uint64(instance))
	b = append(b, " service="...)
	b = conv.AppendHex(b, uint32(service), 2)
	b = append(b, " error="...)
	b = conv.AppendHex(b, uint32(code), 2)
	if c := CodeOf(module, code); c != "" {
		b = append(b, " ("...)
		b = append(b, c...)
		b = append(b, ')')
	}
	b = append(b, '\n')
	l.buf = b
	_, _ = l.w.Write(b)
}
