package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProblemWithFlattensExtensions(t *testing.T) {
	rr := httptest.NewRecorder()
	ProblemWith(rr, http.StatusConflict, "Insufficient Stock", "not enough", map[string]any{"available": 2})

	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "Insufficient Stock", body["title"])
	require.EqualValues(t, 409, body["status"])
	require.EqualValues(t, 2, body["available"])
}

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("%w: id", ErrBadRequest):  http.StatusBadRequest,
		fmt.Errorf("%w: x", ErrNotFound):     http.StatusNotFound,
		fmt.Errorf("%w: busy", ErrConflict):  http.StatusConflict,
		fmt.Errorf("%w: qty", ErrValidation): http.StatusBadRequest,
		fmt.Errorf("boom"):                   http.StatusInternalServerError,
	}
	for err, status := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, err)
		require.Equal(t, status, rr.Code, err.Error())
	}
}
