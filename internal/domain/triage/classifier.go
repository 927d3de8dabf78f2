package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrClassificationUnavailable indicates the external classification
// capability could not produce a verdict. Callers apply the safe default
// rather than drop the message.
var ErrClassificationUnavailable = errors.New("classification unavailable")

// Classifier produces a Classification for message content.
type Classifier interface {
	Classify(ctx context.Context, content string) (*Classification, error)
}

// DefaultClassification is the safe fallback applied when classification
// fails: under-triage to routine but force physician review, so a broken
// classifier can never hide an urgent message from clinical eyes.
func DefaultClassification() *Classification {
	return &Classification{
		Urgency:                 UrgencyRoutine,
		Topic:                   "clinical_question",
		RequiresPhysicianReview: true,
	}
}

var validUrgencies = map[string]bool{
	UrgencyUrgent: true, UrgencyHigh: true, UrgencyRoutine: true, UrgencyLow: true,
}

// HTTPClassifier calls an external classification service over HTTP.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

// NewHTTPClassifier creates a classifier that POSTs message content to url.
func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Content string `json:"content"`
}

// Classify sends the message content to the classification service. Any
// transport failure, non-200 status, or malformed body is reported as
// ErrClassificationUnavailable.
func (c *HTTPClassifier) Classify(ctx context.Context, content string) (*Classification, error) {
	body, err := json.Marshal(classifyRequest{Content: content})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrClassificationUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrClassificationUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrClassificationUnavailable, resp.StatusCode)
	}

	var cls Classification
	if err := json.NewDecoder(resp.Body).Decode(&cls); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrClassificationUnavailable, err)
	}
	if !validUrgencies[cls.Urgency] {
		return nil, fmt.Errorf("%w: unknown urgency %q", ErrClassificationUnavailable, cls.Urgency)
	}
	if cls.Topic == "" {
		cls.Topic = "clinical_question"
	}

	return &cls, nil
}

// StaticClassifier is a test double that returns a fixed result or error.
type StaticClassifier struct {
	Result *Classification
	Err    error
}

func (s *StaticClassifier) Classify(_ context.Context, _ string) (*Classification, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Result, nil
}
