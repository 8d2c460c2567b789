package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"google.golang.org/genai"

	"listing-optimizer/gemini"
	"listing-optimizer/models"
)

// callLog records the order in which collaborators are invoked.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(name string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *callLog) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type memListingStore struct {
	mu       sync.Mutex
	log      *callLog
	listings []models.Listing
	err      error
}

func (s *memListingStore) FindFreshSnapshot(_ context.Context, asin string, ttl time.Duration) (*models.Listing, error) {
	s.log.add("lookup")
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-ttl)
	var best *models.Listing
	for i := range s.listings {
		l := &s.listings[i]
		if l.ASIN != asin || !l.FetchedAt.After(cutoff) {
			continue
		}
		if best == nil || l.FetchedAt.After(best.FetchedAt) {
			best = l
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (s *memListingStore) FindLatest(_ context.Context, asin string) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.Listing
	for i := range s.listings {
		l := &s.listings[i]
		if l.ASIN == asin && (best == nil || l.FetchedAt.After(best.FetchedAt)) {
			best = l
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (s *memListingStore) Save(_ context.Context, l *models.Listing) (int64, error) {
	s.log.add("save")
	if s.err != nil {
		return 0, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	cp.ID = int64(len(s.listings) + 1)
	s.listings = append(s.listings, cp)
	return cp.ID, nil
}

type memOptimizationStore struct {
	mu       sync.Mutex
	log      *callLog
	records  []models.Optimization
	listings *memListingStore
	err      error
}

func (s *memOptimizationStore) Record(_ context.Context, o *models.Optimization) (int64, error) {
	s.log.add("record")
	if s.err != nil {
		return 0, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	cp.ID = int64(len(s.records) + 1)
	s.records = append(s.records, cp)
	return cp.ID, nil
}

func (s *memOptimizationStore) byASIN(asin string) []models.Optimization {
	var out []models.Optimization
	for _, o := range s.records {
		if o.ASIN == asin {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *memOptimizationStore) ListByIdentifier(_ context.Context, asin string, limit, offset int) ([]models.Optimization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.byASIN(asin)
	if offset >= len(all) {
		return []models.Optimization{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *memOptimizationStore) CountByIdentifier(_ context.Context, asin string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byASIN(asin)), nil
}

func (s *memOptimizationStore) GetWithListing(_ context.Context, id int64) (*models.OptimizationDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.records {
		if o.ID == id {
			d := &models.OptimizationDetail{Optimization: o}
			if s.listings != nil {
				for _, l := range s.listings.listings {
					if l.ID == o.ListingID {
						d.OriginalTitle = l.Title
						d.OriginalBullets = l.BulletPoints
					}
				}
			}
			return d, nil
		}
	}
	return nil, nil
}

func (s *memOptimizationStore) MostRecentPerIdentifier(_ context.Context, limit int) ([]models.RecentOptimization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := map[string]models.Optimization{}
	for _, o := range s.records {
		if cur, ok := latest[o.ASIN]; !ok || o.ID > cur.ID {
			latest[o.ASIN] = o
		}
	}
	out := []models.RecentOptimization{}
	for _, o := range latest {
		out = append(out, models.RecentOptimization{ID: o.ID, ASIN: o.ASIN, OptimizedTitle: o.OptimizedTitle})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memOptimizationStore) DeleteByIdentifier(_ context.Context, asin string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var n int64
	for _, o := range s.records {
		if o.ASIN == asin {
			n++
			continue
		}
		kept = append(kept, o)
	}
	s.records = kept
	return n, nil
}

type stubExtractor struct {
	log     *callLog
	listing *models.Listing
	err     error
	calls   int
}

func (e *stubExtractor) Extract(_ context.Context, asin, marketplace string) (*models.Listing, error) {
	e.log.add("extract")
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	cp := *e.listing
	cp.ASIN = asin
	return &cp, nil
}

type stubRewriter struct {
	log     *callLog
	rewrite *models.Rewrite
	err     error
	seen    []*models.Listing
}

func (r *stubRewriter) Rewrite(_ context.Context, l *models.Listing) (*models.Rewrite, error) {
	r.log.add("rewrite")
	r.seen = append(r.seen, l)
	if r.err != nil {
		return nil, r.err
	}
	return r.rewrite, nil
}

type stubGenerator struct {
	gen    *gemini.Generation
	err    error
	prompt string
	schema *genai.Schema
}

func (g *stubGenerator) Generate(_ context.Context, prompt string, schema *genai.Schema) (*gemini.Generation, error) {
	g.prompt = prompt
	g.schema = schema
	if g.err != nil {
		return nil, g.err
	}
	return g.gen, nil
}
