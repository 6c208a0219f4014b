//go:build ignore
// +build ignore

// SSE fan-out soak test. Holds many concurrent wall-display connections on
// /api/events/stream, optionally generating live events by toggling one
// route between collected and active, and reports delivery latency.
//
// Usage:
//
//	go run scripts/sse_loadtest.go \
//	  --base=http://localhost:8080 \
//	  --clients=200 \
//	  --duration=2m \
//	  --route=<route-day-uuid> \
//	  --rate=5
//
// Without --route the script only soaks connects and replay; with it, each
// toggle publishes an event whose id timestamp is compared against receipt
// time on every client.
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

type metrics struct {
	connects    int64
	connectErrs int64
	frames      int64
	keepalives  int64
	disconnects int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *metrics) addLatency(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

func (m *metrics) percentile(p float64) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func main() {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	clients := flag.Int("clients", 100, "concurrent SSE connections")
	duration := flag.Duration("duration", time.Minute, "soak duration")
	routeDay := flag.String("route", "", "route_day id to toggle for live events (optional)")
	rate := flag.Float64("rate", 2, "toggles per second when --route is set")
	actor := flag.String("actor", "33333333-3333-4333-8333-333333333301", "X-Actor-Id for toggles")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		fmt.Println("\ninterrupted, reporting what we have...")
		cancel()
	}()

	m := &metrics{}
	var wg sync.WaitGroup

	fmt.Printf("connecting %d SSE clients to %s for %s...\n", *clients, *base, *duration)
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			streamClient(ctx, *base, m)
		}()
		// Stagger connects so the server sees a ramp, not a stampede.
		time.Sleep(5 * time.Millisecond)
	}

	if *routeDay != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			toggleRoute(ctx, *base, *routeDay, *actor, *rate)
		}()
	}

	wg.Wait()

	fmt.Println()
	fmt.Println("=========================================================")
	fmt.Println(" SSE SOAK REPORT")
	fmt.Println("=========================================================")
	fmt.Printf("  connects:        %d (errors %d)\n", atomic.LoadInt64(&m.connects), atomic.LoadInt64(&m.connectErrs))
	fmt.Printf("  event frames:    %d\n", atomic.LoadInt64(&m.frames))
	fmt.Printf("  keepalives:      %d\n", atomic.LoadInt64(&m.keepalives))
	fmt.Printf("  disconnects:     %d\n", atomic.LoadInt64(&m.disconnects))
	if n := len(m.latencies); n > 0 {
		fmt.Printf("  live latency:    n=%d p50=%s p95=%s p99=%s\n",
			n, m.percentile(0.50), m.percentile(0.95), m.percentile(0.99))
	}
}

// streamClient holds one connection open, reconnecting until ctx ends, and
// measures id-timestamp-to-receipt latency on every event frame.
func streamClient(ctx context.Context, base string, m *metrics) {
	for ctx.Err() == nil {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/events/stream", nil)
		if err != nil {
			return
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				atomic.AddInt64(&m.connectErrs, 1)
				time.Sleep(time.Second)
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			atomic.AddInt64(&m.connectErrs, 1)
			time.Sleep(time.Second)
			continue
		}
		atomic.AddInt64(&m.connects, 1)

		br := bufio.NewReader(resp.Body)
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				break
			}
			line = strings.TrimRight(line, "\r\n")
			switch {
			case strings.HasPrefix(line, "id: "):
				if ts, err := time.Parse("2006-01-02T15:04:05.000Z07:00", line[4:]); err == nil {
					m.addLatency(time.Since(ts))
				}
				atomic.AddInt64(&m.frames, 1)
			case strings.HasPrefix(line, ": keepalive"):
				atomic.AddInt64(&m.keepalives, 1)
			}
		}
		resp.Body.Close()
		if ctx.Err() == nil {
			atomic.AddInt64(&m.disconnects, 1)
		}
	}
}

// toggleRoute alternates mark-collected and reactivate so each call appends
// one event for the clients to receive.
func toggleRoute(ctx context.Context, base, routeDay, actor string, rate float64) {
	if rate <= 0 {
		rate = 1
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()

	collected := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		action := "mark-collected"
		if collected {
			action = "reactivate"
		}
		collected = !collected

		url := fmt.Sprintf("%s/api/routes/%s/%s", base, routeDay, action)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(nil))
		if err != nil {
			return
		}
		req.Header.Set("X-Actor-Id", actor)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict {
			fmt.Printf("toggle %s: HTTP %d\n", action, resp.StatusCode)
		}
	}
}
