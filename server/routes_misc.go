// routes_misc.go - Hilfsfunktionen fuer Handler
// Enthaelt: streamResponse(), waitForStream(), errorStatus(), inputBatch()

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ollama/gpt2/api"
	"github.com/ollama/gpt2/ml"
	"github.com/ollama/gpt2/model/models/gpt2"
	"github.com/ollama/gpt2/runner"
)

// errorStatus bildet Fehler der Generierung auf HTTP-Status ab
func errorStatus(err error) int {
	switch {
	case errors.Is(err, runner.ErrInvalidInput),
		errors.Is(err, gpt2.ErrInvalidConfig),
		errors.Is(err, gpt2.ErrContextLength),
		errors.Is(err, ml.ErrInvalidInputDtype),
		errors.Is(err, ml.ErrShapeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// inputBatch prueft, dass die Zeilen ein nicht-leeres Rechteck bilden, und
// gibt sie flach zurueck
func inputBatch(rows [][]int32) ([]int32, int, int, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, 0, 0, fmt.Errorf("%w: input_ids must not be empty", runner.ErrInvalidInput)
	}

	flat := make([]int32, 0, len(rows)*len(rows[0]))
	for i, row := range rows {
		if len(row) != len(rows[0]) {
			return nil, 0, 0, fmt.Errorf("%w: row %d has %d ids, row 0 has %d", runner.ErrInvalidInput, i, len(row), len(rows[0]))
		}
		flat = append(flat, row...)
	}

	return flat, len(rows), len(rows[0]), nil
}

// outputRows teilt flache IDs in Zeilen der Laenge n
func outputRows(ids []int32, n int) [][]int32 {
	rows := make([][]int32, len(ids)/n)
	for i := range rows {
		rows[i] = ids[i*n : (i+1)*n]
	}
	return rows
}

// waitForStream wartet auf die letzte Response und sendet nur diese
func waitForStream(c *gin.Context, ch chan any) {
	c.Header("Content-Type", "application/json")
	var latest any
	for resp := range ch {
		switch r := resp.(type) {
		case api.GenerateResponse:
			latest = r
		case gin.H:
			status, ok := r["status"].(int)
			if !ok {
				status = http.StatusInternalServerError
			}
			errorMsg, ok := r["error"].(string)
			if !ok {
				errorMsg = "unknown error"
			}
			c.JSON(status, gin.H{"error": errorMsg})
			return
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown message type"})
			return
		}
	}

	c.JSON(http.StatusOK, latest)
}

// streamResponse streamt ndjson Responses
func streamResponse(c *gin.Context, ch chan any) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Stream(func(w io.Writer) bool {
		val, ok := <-ch
		if !ok {
			return false
		}

		if h, ok := val.(gin.H); ok {
			if e, ok := h["error"].(string); ok {
				status, ok := h["status"].(int)
				if !ok {
					status = http.StatusInternalServerError
				}

				if !c.Writer.Written() {
					c.Header("Content-Type", "application/json")
					c.JSON(status, gin.H{"error": e})
				} else {
					if err := json.NewEncoder(c.Writer).Encode(gin.H{"error": e}); err != nil {
						slog.Error("streamResponse failed to encode json error", "error", err)
					}
				}

				return false
			}
		}

		bts, err := json.Marshal(val)
		if err != nil {
			slog.Info(fmt.Sprintf("streamResponse: json.Marshal failed with %s", err))
			return false
		}

		// Delineate chunks with new-line delimiter
		bts = append(bts, '\n')
		if _, err := w.Write(bts); err != nil {
			slog.Info(fmt.Sprintf("streamResponse: w.Write failed with %s", err))
			return false
		}

		return true
	})
}
