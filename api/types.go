// types.go - API-Typen fuer Requests und Responses
// Enthaelt: StatusError, Metrics, GenerateRequest/Response, TopKRequest/Response, ShowResponse
package api

import (
	"fmt"
	"io"
	"time"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the server logs for details"
	}
}

// Metrics beschreibt die Laufzeit einer Generierung
type Metrics struct {
	TotalDuration      time.Duration `json:"total_duration,omitempty"`
	PromptEvalCount    int           `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration time.Duration `json:"prompt_eval_duration,omitempty"`
	EvalCount          int           `json:"eval_count,omitempty"`
	EvalDuration       time.Duration `json:"eval_duration,omitempty"`
}

// Summary schreibt die Metriken lesbar nach w
func (m *Metrics) Summary(w io.Writer) {
	if m.TotalDuration > 0 {
		fmt.Fprintf(w, "total duration:       %v\n", m.TotalDuration)
	}

	if m.PromptEvalCount > 0 {
		fmt.Fprintf(w, "prompt eval count:    %d token(s)\n", m.PromptEvalCount)
	}

	if m.PromptEvalDuration > 0 {
		fmt.Fprintf(w, "prompt eval duration: %s\n", m.PromptEvalDuration)
		fmt.Fprintf(w, "prompt eval rate:     %.2f tokens/s\n", float64(m.PromptEvalCount)/m.PromptEvalDuration.Seconds())
	}

	if m.EvalCount > 0 {
		fmt.Fprintf(w, "eval count:           %d token(s)\n", m.EvalCount)
	}

	if m.EvalDuration > 0 {
		fmt.Fprintf(w, "eval duration:        %s\n", m.EvalDuration)
		fmt.Fprintf(w, "eval rate:            %.2f tokens/s\n", float64(m.EvalCount)/m.EvalDuration.Seconds())
	}
}

// GenerateRequest describes a request sent by [Client.Generate].
type GenerateRequest struct {
	// InputIDs is the batch of token id rows. All rows must have the same length.
	InputIDs [][]int32 `json:"input_ids"`

	// MaxNewTokens is the number of tokens generated per row. Nil uses the
	// server default.
	MaxNewTokens *int `json:"max_new_tokens,omitempty"`

	// NumHeads overrides the attention head count of the model.
	NumHeads int `json:"num_heads,omitempty"`

	// Stream specifies whether the response is streaming; it is true by default.
	Stream *bool `json:"stream,omitempty"`
}

// GenerateResponse is the response passed into [GenerateResponseFunc].
type GenerateResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Tokens holds the newly generated token of each row.
	Tokens []int32 `json:"tokens,omitempty"`

	Done bool `json:"done"`

	// OutputIDs is set on the final response: the input rows followed by
	// all generated tokens.
	OutputIDs [][]int32 `json:"output_ids,omitempty"`

	Metrics
}

// TopKRequest fragt die wahrscheinlichsten naechsten Tokens ab
type TopKRequest struct {
	InputIDs [][]int32 `json:"input_ids"`
	K        int       `json:"k,omitempty"`
	NumHeads int       `json:"num_heads,omitempty"`
}

type TokenProb struct {
	Token       int32   `json:"token"`
	Probability float32 `json:"probability"`
}

type TopKResponse struct {
	ID  string        `json:"id"`
	Top [][]TokenProb `json:"top"`
}

// ShowResponse beschreibt das geladene Modell
type ShowResponse struct {
	Path            string `json:"path"`
	Architecture    string `json:"architecture"`
	NumLayers       int    `json:"num_layers"`
	NumHeads        int    `json:"num_heads"`
	EmbeddingLength int    `json:"embedding_length"`
	ContextLength   int    `json:"context_length"`
	VocabSize       int    `json:"vocab_size"`
}
