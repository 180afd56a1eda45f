package middleware

import (
	"bytes"
	"io"
	"net/http"
)

// responseRecorder tees the response so the handler's output reaches the
// client unchanged while a copy feeds the cassette.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        []byte
}

func (w *responseRecorder) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseRecorder) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	w.body = append(w.body, p...)
	return w.ResponseWriter.Write(p)
}

func (w *responseRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// readAndRestore consumes a body and replaces it with an equivalent reader.
func readAndRestore(body *io.ReadCloser) ([]byte, error) {
	data, err := io.ReadAll(*body)
	closeErr := (*body).Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}
	*body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}
