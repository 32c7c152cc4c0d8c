package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/sitecrawl/models"
)

func TestDeliver_SignsBody(t *testing.T) {
	received := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received <- r
		bodies <- b
	}))
	defer srv.Close()

	p := models.Progress{JobID: "job-1", State: models.JobCompleted}
	n := NewNotifier()
	require.NoError(t, n.Deliver(context.Background(), srv.URL, "s3cret", EventFor(p)))

	r := <-received
	body := <-bodies
	assert.Equal(t, Sign("s3cret", body), r.Header.Get(SignatureHeader))

	var ev Event
	require.NoError(t, json.Unmarshal(body, &ev))
	assert.Equal(t, "crawl.completed", ev.Type)
	assert.Equal(t, "job-1", ev.JobID)
}

func TestNotify_RetriesUntilSuccess(t *testing.T) {
	calls := make(chan struct{}, 4)
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		calls <- struct{}{}
	}))
	defer srv.Close()

	n := NewNotifier()
	n.delays = []time.Duration{0, 10 * time.Millisecond}
	n.Notify(models.Progress{JobID: "job-2", State: models.JobFailed}, srv.URL, "")

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not retried")
	}
}
