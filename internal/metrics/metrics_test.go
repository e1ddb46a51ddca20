package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	before := testutil.ToFloat64(branchPollStalled)
	IncBranchPollStalled()
	assert.Equal(t, before+1, testutil.ToFloat64(branchPollStalled))

	SetActivePlayers(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(activePlayers))

	ObserveBackendRequest("start_story", "ok", 120*time.Millisecond)
	IncBranchPoll("pending")
	IncSessionStore("saved")

	before = testutil.ToFloat64(backendMalformed.WithLabelValues("poll_branches"))
	IncBackendMalformed("poll_branches")
	assert.Equal(t, before+1, testutil.ToFloat64(backendMalformed.WithLabelValues("poll_branches")))

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics/player", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	for _, name := range []string{
		"story_player_backend_requests_total",
		"story_player_backend_request_duration_seconds",
		"story_player_backend_malformed_responses_total",
		"go_goroutines",
	} {
		assert.Contains(t, string(body), name)
	}
}
