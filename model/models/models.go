// Package models registriert alle eingebauten Modell-Architekturen
package models

import (
	_ "github.com/ollama/gpt2/model/models/gpt2"
)
