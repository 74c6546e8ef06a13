// Command gotoken-loadtest drives issue, validate and refresh traffic against
// a goToken engine and checks that concurrent rotation of one refresh token
// has exactly one winner.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	goToken "github.com/MrEthical07/goToken"
)

func main() {
	var (
		workers    = flag.Int("workers", 64, "number of concurrent workers")
		iterations = flag.Int("iterations", 20000, "operations per phase")
		redisAddr  = flag.String("redis", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		racers     = flag.Int("racers", 16, "goroutines per single-winner trial")
		trials     = flag.Int("trials", 200, "single-winner trials")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *workers <= 0 || *iterations <= 0 || *racers <= 1 || *trials <= 0 {
		logger.Error("workers, iterations and trials must be > 0, racers > 1")
		os.Exit(2)
	}

	if err := run(logger, *redisAddr, *workers, *iterations, *racers, *trials); err != nil {
		logger.Error("load test failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, addr string, workers, iterations, racers, trials int) error {
	ctx := context.Background()

	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		logger.Info("using miniredis", zap.String("addr", addr))
	} else {
		logger.Info("using redis", zap.String("addr", addr))
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		PoolSize: workers * 2,
	})
	defer func() { _ = rdb.Close() }()

	cfg := goToken.DefaultConfig()
	cfg.Keys.StaticSecret = []byte("loadtest-static-secret-0123456789abcdef")
	users := goToken.UserProviderFunc(func(_ context.Context, id string) (goToken.User, error) {
		return goToken.User{ID: id, Role: "member"}, nil
	})
	engine, err := goToken.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	pairs := make([]*goToken.TokenPair, iterations)
	issueStats := runPhase(workers, iterations, func(i int) error {
		user := goToken.User{ID: fmt.Sprintf("user-%d", i%1024), Role: "member"}
		pair, err := engine.Issue(ctx, user, fmt.Sprintf("sid-%d", i), "")
		pairs[i] = pair
		return err
	})

	validateStats := runPhase(workers, iterations, func(i int) error {
		pair := pairs[i]
		if pair == nil {
			return errors.New("no pair")
		}
		_, err := engine.Validate(ctx, pair.AccessToken, "")
		return err
	})

	refreshStats := runPhase(workers, iterations, func(i int) error {
		pair := pairs[i]
		if pair == nil {
			return errors.New("no pair")
		}
		next, err := engine.RotateRefresh(ctx, pair.RefreshToken, "")
		if err == nil {
			pairs[i] = next
		}
		return err
	})

	logStats(logger, "issue", issueStats)
	logStats(logger, "validate", validateStats)
	logStats(logger, "refresh", refreshStats)

	violations := 0
	for trial := 0; trial < trials; trial++ {
		user := goToken.User{ID: fmt.Sprintf("racer-%d", trial), Role: "member"}
		pair, err := engine.Issue(ctx, user, fmt.Sprintf("race-%d", trial), "")
		if err != nil {
			return fmt.Errorf("issue race pair: %w", err)
		}
		if winners := race(ctx, engine, pair.RefreshToken, racers); winners != 1 {
			violations++
			logger.Error("single winner violated", zap.Int("trial", trial), zap.Int("winners", winners))
		}
	}
	logger.Info("single-winner check", zap.Int("trials", trials), zap.Int("racers", racers), zap.Int("violations", violations))
	if violations > 0 {
		return fmt.Errorf("%d of %d trials had more than one winner", violations, trials)
	}

	snap := engine.MetricsSnapshot()
	logger.Info("engine counters", zap.Any("counters", snap.Counters))
	return nil
}

// race rotates token from n goroutines at once and returns how many won.
func race(ctx context.Context, engine *goToken.Engine, token string, n int) int {
	var (
		wg      sync.WaitGroup
		winners int64
		start   = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := engine.RotateRefresh(ctx, token, ""); err == nil {
				atomic.AddInt64(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()
	return int(winners)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func runPhase(workers, ops int, op func(i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, ops)
	)

	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				if err := op(i); err != nil {
					atomic.AddInt64(&failures, 1)
				}
				latencies[i] = time.Since(t0)
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
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

func logStats(logger *zap.Logger, name string, s phaseStats) {
	logger.Info("phase complete",
		zap.String("phase", name),
		zap.Int("ops", s.ops),
		zap.Int64("failures", s.failures),
		zap.Duration("total", s.total.Round(time.Millisecond)),
		zap.Float64("ops_per_sec", s.opsPerS),
		zap.Duration("p50", s.p50),
		zap.Duration("p95", s.p95),
		zap.Duration("p99", s.p99),
	)
}
