package storage

import (
	"errors"
	"time"

	"github.com/kalambet/sentio/internal/sentiment"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Message is a processed chat message. All fields are immutable once stored.
type Message struct {
	ID              int64           `json:"id"`
	OriginalMessage string          `json:"originalMessage"`
	Summary         string          `json:"summary"`
	AutoResponse    string          `json:"autoResponse"`
	Sentiment       sentiment.Label `json:"sentiment"`
	SentimentScore  float64         `json:"sentimentScore"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// NewMessage carries the caller-supplied fields of a message. Identity and
// creation time are assigned by the store.
type NewMessage struct {
	OriginalMessage string
	Summary         string
	AutoResponse    string
	Sentiment       sentiment.Label
	SentimentScore  float64
}

type Product struct {
	ID                   int64     `json:"id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	GeneratedDescription string    `json:"generatedDescription"`
	Price                float64   `json:"price"`
	Category             string    `json:"category"`
	CreatedAt            time.Time `json:"createdAt"`
}

type NewProduct struct {
	Name                 string
	Description          string
	GeneratedDescription string
	Price                float64
	Category             string
}
