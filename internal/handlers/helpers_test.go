package handlers_test

import (
	"net/http/httptest"
)

// streamRecorder lets gin's Stream run against a recorder, which does not
// implement http.CloseNotifier on its own
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
}

func (r *streamRecorder) CloseNotify() <-chan bool {
	return r.closed
}
