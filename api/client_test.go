package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	base, err := url.Parse(ts.URL)
	require.NoError(t, err)
	return NewClient(base, ts.Client())
}

func TestClientGenerate(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req GenerateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, [][]int32{{1, 2}}, req.InputIDs)

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, tok := range []int32{7, 8} {
			fmt.Fprintf(w, `{"id":"x","tokens":[%d],"done":false}`+"\n", tok)
		}
		fmt.Fprintln(w, `{"id":"x","done":true,"output_ids":[[1,2,7,8]],"eval_count":2}`)
	})

	var tokens []int32
	var final GenerateResponse
	err := c.Generate(t.Context(), &GenerateRequest{InputIDs: [][]int32{{1, 2}}}, func(resp GenerateResponse) error {
		if resp.Done {
			final = resp
			return nil
		}
		tokens = append(tokens, resp.Tokens...)
		return nil
	})
	require.NoError(t, err)

	if diff := cmp.Diff([]int32{7, 8}, tokens); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, [][]int32{{1, 2, 7, 8}}, final.OutputIDs)
	assert.Equal(t, 2, final.EvalCount)
}

func TestClientErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"json fehler", http.StatusBadRequest, `{"error":"invalid input"}`, "invalid input"},
		{"text fehler", http.StatusInternalServerError, "boom", "boom"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprintln(w, tt.body)
			})

			err := c.Generate(t.Context(), &GenerateRequest{}, func(GenerateResponse) error { return nil })
			var statusErr StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.message, statusErr.ErrorMessage)

			_, err = c.TopK(t.Context(), &TopKRequest{})
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
		})
	}
}

func TestClientTopKVersion(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/topk":
			fmt.Fprint(w, `{"id":"x","top":[[{"token":3,"probability":0.5}]]}`)
		case "/api/version":
			fmt.Fprint(w, `{"version":"1.2.3"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	resp, err := c.TopK(t.Context(), &TopKRequest{InputIDs: [][]int32{{1}}, K: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]TokenProb{{{Token: 3, Probability: 0.5}}}, resp.Top)

	v, err := c.Version(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)
}
