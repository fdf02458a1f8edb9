package crawler

import (
	"net/http"
	"time"
)

// Page is a fetched HTML document.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
