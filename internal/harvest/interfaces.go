package harvest

import "context"

// Fetcher fetches a URL and returns the body plus transport metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}
