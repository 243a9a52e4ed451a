package metrics

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_SingleInstance(t *testing.T) {
	first := NewMetrics()
	second := NewMetrics()

	require.NotNil(t, first)
	assert.Same(t, first, second)
}

func TestNewMetrics_ConcurrentCalls(t *testing.T) {
	results := make([]*Metrics, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = NewMetrics()
		}(i)
	}
	wg.Wait()

	for _, m := range results {
		require.NotNil(t, m)
		assert.Same(t, results[0], m)
	}
}

// hijackableRecorder stands in for a real server connection so hijack
// passthrough can be observed.
type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	c1, _ := net.Pipe()
	return c1, bufio.NewReadWriter(bufio.NewReader(c1), bufio.NewWriter(c1)), nil
}

func TestMiddleware_PreservesHijack(t *testing.T) {
	m := NewMetrics()

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok, "wrapped writer must support hijacking for socket upgrades")

		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	}))

	rec := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.True(t, rec.hijacked)
}

func TestMiddleware_RecordsStatus(t *testing.T) {
	m := NewMetrics()

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
