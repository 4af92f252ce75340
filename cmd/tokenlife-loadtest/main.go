// Command tokenlife-loadtest drives a full engine through issue, validate,
// and refresh phases and reports per-phase throughput and latency
// percentiles. With no -redis-addr flag and no REDIS_ADDR env it runs
// against an embedded miniredis, which measures engine overhead rather than
// network round trips.
package main

import (
	"context"
	"crypto/ed25519"
	crand "crypto/rand"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tokenlife/tokenlife"
)

type sessionRecord struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	var (
		sessions    = flag.Int("sessions", 50000, "number of sessions to issue in the seed phase")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (validate, refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "tl", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  *redis.Client
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen failed: %v\n", err)
		os.Exit(1)
	}

	cfg := tokenlife.DefaultConfig()
	cfg.JWT.Issuer = "loadtest"
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Session.RedisPrefix = *prefix
	// Throttles would dominate the numbers at this request rate.
	cfg.RateLimit.EnableIssueThrottle = false
	cfg.RateLimit.EnableRefreshThrottle = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := tokenlife.New().
		WithConfig(cfg).
		WithRedis(client).
		WithRoles([]string{"member"}).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	records := make([]*sessionRecord, *sessions)
	for i := range records {
		records[i] = &sessionRecord{}
	}

	issueStats := runIssuePhase(ctx, engine, records, *concurrency)
	validateStats := runValidatePhase(ctx, engine, records, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, records, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Println("---- engine counters ----")
	fmt.Printf("issued=%d validated=%d refreshed=%d reuse_detected=%d\n",
		snap.Counters[tokenlife.MetricIssueSuccess],
		snap.Counters[tokenlife.MetricValidateSuccess],
		snap.Counters[tokenlife.MetricRefreshSuccess],
		snap.Counters[tokenlife.MetricRefreshReuseDetected],
	)
}

// runIssuePhase mints one session per record. Workers spread principals over
// a fixed pool of user IDs so the per-user session index sees realistic
// fan-out instead of one giant set.
func runIssuePhase(ctx context.Context, engine *tokenlife.Engine, records []*sessionRecord, concurrency int) phaseResult {
	collector := newCollector(len(records))
	var cursor int64

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(records) {
					return
				}
				p := tokenlife.Principal{
					UserID:   fmt.Sprintf("user-%d", i%1024),
					TenantID: "load",
					Roles:    []string{"member"},
				}
				t0 := time.Now()
				pair, err := engine.Issue(ctx, p)
				d := time.Since(t0)
				if err == nil {
					rec := records[i]
					rec.mu.Lock()
					rec.access = pair.AccessToken
					rec.refresh = pair.RefreshToken
					rec.mu.Unlock()
				}
				collector.record(d, err)
			}
		}()
	}
	wg.Wait()
	return collector.result(time.Since(start))
}

func runValidatePhase(ctx context.Context, engine *tokenlife.Engine, records []*sessionRecord, ops, concurrency int) phaseResult {
	collector := newCollector(ops)
	var cursor int64

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				rec := records[r.Intn(len(records))]
				rec.mu.Lock()
				token := rec.access
				rec.mu.Unlock()

				t0 := time.Now()
				_, err := engine.Validate(ctx, token)
				collector.record(time.Since(t0), err)
			}
		}(w)
	}
	wg.Wait()
	return collector.result(time.Since(start))
}

// runRefreshPhase exchanges refresh tokens. Each record is locked across its
// exchange so the phase measures rotation cost, not deliberate replay
// conflicts; every presented token is the current head of its lineage.
func runRefreshPhase(ctx context.Context, engine *tokenlife.Engine, records []*sessionRecord, ops, concurrency int) phaseResult {
	collector := newCollector(ops)
	var cursor int64

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				rec := records[r.Intn(len(records))]

				rec.mu.Lock()
				t0 := time.Now()
				pair, err := engine.Refresh(ctx, rec.refresh)
				d := time.Since(t0)
				if err == nil {
					rec.access = pair.AccessToken
					rec.refresh = pair.RefreshToken
				}
				rec.mu.Unlock()

				collector.record(d, err)
			}
		}(w)
	}
	wg.Wait()
	return collector.result(time.Since(start))
}

type phaseResult struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

// collector gathers per-operation latencies under a mutex. Sorting happens
// once at the end, off the measured path.
type collector struct {
	mu        sync.Mutex
	latencies []time.Duration
	failures  int64
}

func newCollector(capacity int) *collector {
	return &collector{latencies: make([]time.Duration, 0, capacity)}
}

func (c *collector) record(d time.Duration, err error) {
	if err != nil {
		atomic.AddInt64(&c.failures, 1)
	}
	c.mu.Lock()
	c.latencies = append(c.latencies, d)
	c.mu.Unlock()
}

func (c *collector) result(total time.Duration) phaseResult {
	if len(c.latencies) == 0 {
		return phaseResult{total: total}
	}
	sort.Slice(c.latencies, func(i, j int) bool { return c.latencies[i] < c.latencies[j] })
	return phaseResult{
		total:    total,
		ops:      len(c.latencies),
		failures: atomic.LoadInt64(&c.failures),
		p50:      percentile(c.latencies, 50),
		p95:      percentile(c.latencies, 95),
		p99:      percentile(c.latencies, 99),
		opsPerS:  float64(len(c.latencies)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseResult) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
