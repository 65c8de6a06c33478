package pipeline

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-linkcheck/models"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// fetchCache shares one fetch between targets that repeat a URL, both
// concurrently (singleflight) and later in the batch (LRU).
type fetchCache struct {
	outcomes *lru.Cache[string, models.FetchOutcome]
	group    singleflight.Group
}

func newFetchCache(size int) (*fetchCache, error) {
	outcomes, err := lru.New[string, models.FetchOutcome](size)
	if err != nil {
		return nil, fmt.Errorf("create fetch cache: %w", err)
	}
	return &fetchCache{outcomes: outcomes}, nil
}

// get returns the outcome for rawURL, calling fetch at most once per key
// while it is cached. hit is true when the outcome was not fetched by
// this caller.
func (fc *fetchCache) get(rawURL string, fetch func() models.FetchOutcome) (models.FetchOutcome, bool) {
	key := strings.TrimSpace(rawURL)
	if out, ok := fc.outcomes.Get(key); ok {
		return out, true
	}

	fetched := false
	v, _, _ := fc.group.Do(key, func() (interface{}, error) {
		if out, ok := fc.outcomes.Get(key); ok {
			return out, nil
		}
		fetched = true
		out := fetch()
		if out.Status != models.StatusCancelled {
			fc.outcomes.Add(key, out)
		}
		return out, nil
	})
	return v.(models.FetchOutcome), !fetched
}
