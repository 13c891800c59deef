package backend

import (
	_ "github.com/ollama/gpt2/ml/backend/cpu"
)
