// Package uri assigns identifiers to new resources. Every identifier is
// checked against the store before it is handed out.
package uri

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/graph"
	"github.com/phisdata/phis-dal/engine/sparql"
	"github.com/phisdata/phis-dal/engine/vocab"
	"github.com/phisdata/phis-dal/pkg/fn"
	"github.com/phisdata/phis-dal/pkg/metrics"
)

// Strategy selects how the local part of an identifier is derived.
type Strategy int

const (
	// Random uses a version 4 UUID.
	Random Strategy = iota
	// Sequential uses the highest numeric suffix in use plus one.
	Sequential
	// Hashed uses a digest of the disambiguation key.
	Hashed
)

// Concept describes the identifiers minted for one resource type.
type Concept struct {
	Type     domain.ResourceURI
	Segment  string // path segment under the namespace, e.g. "germplasm"
	Prefix   string // local name prefix, e.g. "g"
	Width    int    // zero padding for sequential suffixes
	Strategy Strategy
}

// Identifier concepts of the resource DAOs.
var (
	Event       = Concept{Type: vocab.Event, Segment: "event", Strategy: Random}
	Instant     = Concept{Type: vocab.Instant, Segment: "instant", Strategy: Random}
	Annotation  = Concept{Type: vocab.Annotation, Segment: "annotation", Strategy: Random}
	Germplasm   = Concept{Type: vocab.Germplasm, Segment: "germplasm", Prefix: "g", Width: 6, Strategy: Sequential}
	Measurement = Concept{Type: vocab.OESO + "Measurement", Segment: "data", Strategy: Hashed}
	Provenance  = Concept{Type: vocab.Provenance, Segment: "provenance", Strategy: Random}
)

// ExistsFunc reports whether uri is already in use.
type ExistsFunc func(ctx context.Context, uri domain.ResourceURI) (bool, error)

// MaxSuffixFunc returns the highest numeric suffix in use under prefix.
type MaxSuffixFunc func(ctx context.Context, prefix string) (int, error)

var errCollision = errors.New("identifier in use")

// Options configures a Generator.
type Options struct {
	// Namespace is the base of every identifier, e.g. "http://phis.example.org/id/".
	Namespace   string
	Exists      ExistsFunc
	MaxSuffix   MaxSuffixFunc
	MaxAttempts int
	Logger      *slog.Logger
	Metrics     *metrics.DAL
}

// Generator mints identifiers. It is safe for concurrent use: sequential
// allocation is serialized per concept and handed-out identifiers are
// remembered so two callers in this process never receive the same one.
type Generator struct {
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	issued map[domain.ResourceURI]struct{}
	last   map[string]int
}

// New creates a new Generator.
func New(opts Options) *Generator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if !strings.HasSuffix(opts.Namespace, "/") && !strings.HasSuffix(opts.Namespace, "#") {
		opts.Namespace += "/"
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		opts:   opts,
		log:    log,
		locks:  map[string]*sync.Mutex{},
		issued: map[domain.ResourceURI]struct{}{},
		last:   map[string]int{},
	}
}

// Base returns the identifier prefix shared by every URI of c under scope.
func (g *Generator) Base(c Concept, scope string) string {
	b := g.opts.Namespace + c.Segment + "/"
	if scope != "" {
		b += scope + "/"
	}
	return b + c.Prefix
}

// Deterministic returns the content-addressed identifier for key without
// consulting the store. Equal keys always give equal identifiers.
func (g *Generator) Deterministic(c Concept, scope string, key ...string) domain.ResourceURI {
	return domain.ResourceURI(g.Base(c, scope) + digest(key, 0))
}

// Generate returns an unused identifier for concept c. scope is an optional
// path segment (such as a year) and key the disambiguation parts used by the
// Hashed strategy. It fails with domain.ErrIdentifierExhausted once
// MaxAttempts candidates were all taken.
func (g *Generator) Generate(ctx context.Context, c Concept, scope string, key ...string) (domain.ResourceURI, error) {
	lock := g.conceptLock(c, scope)
	lock.Lock()
	defer lock.Unlock()

	base := g.Base(c, scope)
	start := 0
	if c.Strategy == Sequential {
		n, err := g.highest(ctx, base)
		if err != nil {
			return "", err
		}
		start = n
	}

	opts := fn.RetryOpts{
		MaxAttempts: g.opts.MaxAttempts,
		Retryable:   func(err error) bool { return errors.Is(err, errCollision) },
		OnRetry: func(attempt int, err error) {
			g.opts.Metrics.IdentifierRetry(c.Segment)
			g.log.Debug("identifier collision", "concept", c.Segment, "attempt", attempt)
		},
	}
	uri, err := fn.Retry(ctx, opts, func(ctx context.Context, attempt int) (domain.ResourceURI, error) {
		candidate := g.candidate(c, base, start, attempt, key)
		if g.opts.Exists != nil {
			taken, err := g.opts.Exists(ctx, candidate)
			if err != nil {
				return "", err
			}
			if taken {
				return "", fmt.Errorf("%s: %w", candidate, errCollision)
			}
		}
		return candidate, nil
	})
	if errors.Is(err, errCollision) {
		g.log.Warn("identifier attempts exhausted", "concept", c.Segment, "attempts", g.opts.MaxAttempts)
		return "", fmt.Errorf("%s after %d attempts: %w", c.Segment, g.opts.MaxAttempts, domain.ErrIdentifierExhausted)
	}
	if err != nil {
		return "", fmt.Errorf("generate %s identifier: %w", c.Segment, err)
	}

	g.mu.Lock()
	g.issued[uri] = struct{}{}
	if c.Strategy == Sequential {
		if n, ok := suffix(string(uri), base); ok && n > g.last[base] {
			g.last[base] = n
		}
	}
	g.mu.Unlock()
	return uri, nil
}

func (g *Generator) conceptLock(c Concept, scope string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := c.Segment + "/" + scope
	l, ok := g.locks[k]
	if !ok {
		l = &sync.Mutex{}
		g.locks[k] = l
	}
	return l
}

// highest is the larger of the store's maximum suffix and the last one this
// process allocated.
func (g *Generator) highest(ctx context.Context, base string) (int, error) {
	n := 0
	if g.opts.MaxSuffix != nil {
		var err error
		if n, err = g.opts.MaxSuffix(ctx, base); err != nil {
			return 0, fmt.Errorf("max suffix under %s: %w", base, err)
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last[base] > n {
		n = g.last[base]
	}
	return n, nil
}

// candidate derives the identifier for one attempt, skipping identifiers
// already handed out by this process.
func (g *Generator) candidate(c Concept, base string, start, attempt int, key []string) domain.ResourceURI {
	g.mu.Lock()
	defer g.mu.Unlock()
	for salt := attempt; ; salt++ {
		var local string
		switch c.Strategy {
		case Sequential:
			local = pad(start+1+salt, c.Width)
		case Hashed:
			local = digest(key, salt)
		default:
			local = uuid.NewString()
		}
		uri := domain.ResourceURI(base + local)
		if _, seen := g.issued[uri]; !seen {
			return uri
		}
	}
}

func pad(n, width int) string {
	s := strconv.Itoa(n)
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

func digest(key []string, salt int) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(key, "\x1f")))
	if salt > 0 {
		fmt.Fprintf(h, "\x1f%d", salt)
	}
	return hex.EncodeToString(h.Sum(nil))[:24]
}

func suffix(uri, base string) (int, bool) {
	rest, ok := strings.CutPrefix(uri, base)
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil
}

// SPARQLMaxSuffix reads the highest numeric suffix of subjects whose IRI
// starts with the prefix.
func SPARQLMaxSuffix(store graph.Store) MaxSuffixFunc {
	return func(ctx context.Context, prefix string) (int, error) {
		q := sparql.NewQuery().Select(sparql.URI).Distinct(true)
		q.Where().
			Triplet(sparql.URI, vocab.Type, sparql.Var("type")).
			Filter(sparql.StrStarts(sparql.URI, prefix))
		rows, err := store.Select(ctx, q.SelectQuery())
		if err != nil {
			return 0, err
		}
		highest := 0
		for _, row := range rows {
			if n, ok := suffix(string(row.URI(string(sparql.URI))), prefix); ok && n > highest {
				highest = n
			}
		}
		return highest, nil
	}
}
