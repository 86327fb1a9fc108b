package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordGeneration(t *testing.T) {
	okBefore := testutil.ToFloat64(GenerationsTotal.WithLabelValues("test-backend", StatusSuccess))
	errBefore := testutil.ToFloat64(GenerationsTotal.WithLabelValues("test-backend", StatusError))

	RecordGeneration("test-backend", time.Now(), nil)
	RecordGeneration("test-backend", time.Now(), errors.New("boom"))
	RecordGeneration("test-backend", time.Now(), errors.New("boom"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(GenerationsTotal.WithLabelValues("test-backend", StatusSuccess)))
	assert.Equal(t, errBefore+2, testutil.ToFloat64(GenerationsTotal.WithLabelValues("test-backend", StatusError)))
}

func TestRecordRPC(t *testing.T) {
	before := testutil.ToFloat64(RPCRequestsTotal.WithLabelValues("someMethod", StatusSuccess))
	RecordRPC("someMethod", StatusSuccess)
	assert.Equal(t, before+1, testutil.ToFloat64(RPCRequestsTotal.WithLabelValues("someMethod", StatusSuccess)))
}

func TestMetricsServerExposesRegistry(t *testing.T) {
	RecordRPC("exposed", StatusSuccess)

	srv, err := New("test", "127.0.0.1:0")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "accountgenerator_rpc_requests_total")
}
