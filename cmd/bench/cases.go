// README: Bench cases: infra reachability, schema, HTTP contract checks and load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tripalbum/internal/infra"
	"tripalbum/internal/modules/location"
	"tripalbum/internal/types"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusSkip, Note: "dsn not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: statusSkip, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: statusSkip, Note: "apply-migration=false"}
				}
				if r.cfg.DSN == "" {
					return Result{Status: statusFail, Note: "dsn not configured"}
				}
				if err := infra.Migrate(r.cfg.DSN, zap.NewNop()); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusSkip, Note: "dsn not configured"}
				}
				for _, table := range []string{"home_locations", "albums", "album_media"} {
					var exists bool
					err := r.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+table).Scan(&exists)
					if err != nil {
						return Result{Status: statusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: statusFail, Note: "missing table " + table}
					}
				}
				return Result{Status: statusPass}
			},
		},
		httpCase("API: health", http.MethodGet, base+"/health", nil, http.StatusOK),
		{
			Name: "API: analyze merges same place across months",
			Run: func(ctx context.Context, r *Runner) Result {
				var resp struct {
					Recommendations []struct {
						Type string `json:"type"`
					} `json:"recommendations"`
				}
				res := r.postJSON(ctx, base+"/recommendations/analyze", analyzeScenario(), &resp)
				if res.Status != statusPass {
					return res
				}
				if len(resp.Recommendations) != 1 || resp.Recommendations[0].Type != "NEW_TRIP" {
					res.Status = statusFail
					res.Note = fmt.Sprintf("got %+v", resp.Recommendations)
				}
				return res
			},
		},
		httpCase("API: analyze rejects missing list", http.MethodPost, base+"/recommendations/analyze", map[string]any{}, http.StatusBadRequest),
		httpCase("API: home rejects bad latitude", http.MethodPut, base+"/api/home", map[string]float64{"lat": 120, "lng": 0}, http.StatusBadRequest),
		httpCase("API: trips list", http.MethodGet, base+"/api/trips", nil, http.StatusOK),
		{
			Name: "Core: cluster points in process",
			Run: func(ctx context.Context, r *Runner) Result {
				return clusterTiming(r.cfg.ClusterPoints)
			},
		},
		{
			Name: "Perf: analyze throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, base+"/recommendations/analyze", analyzeScenario())
			},
		},
	}
}

func analyzeScenario() map[string]any {
	return map[string]any{"mediaInfoList": []map[string]any{
		{"filename": "a.jpg", "latitude": 37.5000, "longitude": 127.0000, "takenAt": "2026-03-01T10:00:00Z"},
		{"filename": "b.jpg", "latitude": 37.5010, "longitude": 127.0010, "takenAt": "2026-03-01T12:00:00Z"},
		{"filename": "c.jpg", "latitude": 37.5020, "longitude": 127.0000, "takenAt": "2026-04-09T10:00:00Z"},
		{"filename": "d.jpg", "latitude": 37.5000, "longitude": 127.0020, "takenAt": "2026-04-09T12:00:00Z"},
	}}
}

func httpCase(name, method, url string, body any, want int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			status, latency, err := r.do(ctx, method, url, body, nil)
			if err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			if status != want {
				return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", status, want)}
			}
			return Result{Status: statusPass, Latency: latency}
		},
	}
}

func (r *Runner) postJSON(ctx context.Context, url string, body, out any) Result {
	status, latency, err := r.do(ctx, http.MethodPost, url, body, out)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
	}
	return Result{Status: statusPass, Latency: latency}
}

func (r *Runner) do(ctx context.Context, method, url string, body, out any) (int, time.Duration, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, err
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, latency, nil
}

// clusterTiming clusters n random points around a handful of cities at the
// trip radius and checks the result is a partition.
func clusterTiming(n int) Result {
	cities := []types.Point{{Lat: 37.50, Lng: 127.03}, {Lat: 35.18, Lng: 129.08}, {Lat: 33.50, Lng: 126.53}}
	rng := rand.New(rand.NewSource(1))
	points := make([]types.Point, n)
	for i := range points {
		c := cities[rng.Intn(len(cities))]
		points[i] = types.Point{Lat: c.Lat + (rng.Float64()-0.5)*0.01, Lng: c.Lng + (rng.Float64()-0.5)*0.01}
	}

	start := time.Now()
	clusters := location.ClusterByRadius(points,
		func(p types.Point) types.Point { return p },
		func(types.Point) time.Time { return time.Time{} },
		500,
	)
	latency := time.Since(start)

	total := 0
	for _, c := range clusters {
		total += c.Size()
	}
	if total != n {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("members=%d want=%d", total, n)}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("points=%d clusters=%d", n, len(clusters))}
}

func perfLoad(ctx context.Context, r *Runner, url string, payload any) Result {
	b, _ := json.Marshal(payload)
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
				req.Header.Set("Content-Type", "application/json")
				resp, err := r.httpc.Do(req)
				if err != nil {
					errCount.Add(1)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}
