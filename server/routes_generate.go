// Package server - Generate, TopK und Show Handler
// Beinhaltet: GenerateHandler, TopKHandler, ShowHandler
package server

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ollama/gpt2/api"
	"github.com/ollama/gpt2/envconfig"
	"github.com/ollama/gpt2/runner"
)

// GenerateHandler fuehrt eine greedy Generierung ueber die uebergebenen
// Token-Zeilen aus und streamt pro Schritt die neuen Tokens
func (s *Server) GenerateHandler(c *gin.Context) {
	checkpointStart := time.Now()

	var req api.GenerateRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids, batchSize, length, err := inputBatch(req.InputIDs)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := runner.GenerationConfig{
		NumHeads:     cmp.Or(req.NumHeads, int(envconfig.NumHeads())),
		MaxNewTokens: int(envconfig.MaxNewTokens()),
	}
	if req.MaxNewTokens != nil {
		cfg.MaxNewTokens = *req.MaxNewTokens
	}

	if err := s.sem.Acquire(c.Request.Context(), 1); err != nil {
		c.AbortWithStatusJSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	id := uuid.NewString()
	slog.Debug("generate request", "id", id, "batch", batchSize, "length", length, "max_new_tokens", cfg.MaxNewTokens)

	ch := make(chan any)
	go func() {
		defer close(ch)
		defer s.sem.Release(1)

		ctx := c.Request.Context()
		mctx := s.backend.NewContext()
		defer mctx.Close()

		input := mctx.Input().FromInts(ids, batchSize, length)
		res, err := runner.Generate(ctx, mctx, s.model, input, cfg, func(step runner.Step) error {
			select {
			case ch <- api.GenerateResponse{
				ID:        id,
				CreatedAt: time.Now().UTC(),
				Tokens:    step.Tokens,
			}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			slog.Debug("generate failed", "id", id, "error", err)
			select {
			case ch <- gin.H{"error": err.Error(), "status": errorStatus(err)}:
			case <-ctx.Done():
			}
			return
		}

		final := api.GenerateResponse{
			ID:        id,
			CreatedAt: time.Now().UTC(),
			Done:      true,
			OutputIDs: outputRows(res.OutputIDs.Ints(), res.OutputIDs.Dim(1)),
			Metrics: api.Metrics{
				TotalDuration:      time.Since(checkpointStart),
				PromptEvalCount:    res.PromptTokens,
				PromptEvalDuration: res.PromptEvalDuration,
				EvalCount:          res.GeneratedTokens,
				EvalDuration:       res.EvalDuration,
			},
		}

		select {
		case ch <- final:
		case <-ctx.Done():
		}
	}()

	if req.Stream != nil && !*req.Stream || req.Stream == nil && envconfig.NoStream() {
		waitForStream(c, ch)
		return
	}

	streamResponse(c, ch)
}

// TopKHandler gibt fuer jede Zeile die k wahrscheinlichsten naechsten
// Tokens zurueck
func (s *Server) TopKHandler(c *gin.Context) {
	var req api.TopKRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids, batchSize, length, err := inputBatch(req.InputIDs)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.sem.Acquire(c.Request.Context(), 1); err != nil {
		c.AbortWithStatusJSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	defer s.sem.Release(1)

	mctx := s.backend.NewContext()
	defer mctx.Close()

	top, err := runner.TopK(mctx, s.model, mctx.Input().FromInts(ids, batchSize, length), cmp.Or(req.NumHeads, int(envconfig.NumHeads())), cmp.Or(req.K, 10))
	if err != nil {
		c.AbortWithStatusJSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	resp := api.TopKResponse{ID: uuid.NewString(), Top: make([][]api.TokenProb, len(top))}
	for i, row := range top {
		resp.Top[i] = make([]api.TokenProb, len(row))
		for j, tp := range row {
			resp.Top[i][j] = api.TokenProb{Token: tp.Token, Probability: tp.Probability}
		}
	}

	c.JSON(http.StatusOK, resp)
}

// ShowHandler beschreibt das geladene Modell
func (s *Server) ShowHandler(c *gin.Context) {
	if s.model == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("model %q not loaded", s.path)})
		return
	}

	config := s.model.Config()
	c.JSON(http.StatusOK, api.ShowResponse{
		Path:            s.path,
		Architecture:    config.Architecture,
		NumLayers:       config.NumLayers,
		NumHeads:        config.NumHeads,
		EmbeddingLength: config.EmbeddingLength,
		ContextLength:   config.ContextLength,
		VocabSize:       config.VocabSize,
	})
}
