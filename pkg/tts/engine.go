package tts

import (
	"context"
)

// Request describes one synthesis job.
type Request struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
}

// Result describes a synthesized audio artifact on disk.
type Result struct {
	AudioPath  string  `json:"audio_path"`
	Filename   string  `json:"filename"`
	Duration   float64 `json:"duration"`
	TextLength int     `json:"text_length"`
	Engine     string  `json:"engine"`
}

// Engine defines the interface for text-to-speech engines
type Engine interface {
	// Initialize initializes the engine with any required configuration
	Initialize() error

	// Name returns the engine name
	Name() string

	// Synthesize renders the request into an audio file and returns
	// where it was written
	Synthesize(ctx context.Context, req Request) (*Result, error)
}
