// Command sse_load opens many concurrent SSE connections against the trade
// stream and reports how the terminal trade events are delivered: totals per
// status, heartbeat volume, and the spread between the slowest and fastest
// connection. A wide spread means the broadcaster is dropping laggards and
// its buffer needs resizing.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

type tradeEvent struct {
	TradeID string `json:"trade_id"`
	Status  string `json:"status"`
}

type counters struct {
	connected   int64
	connectErrs int64
	streamErrs  int64
	heartbeats  int64
	success     int64
	failed      int64
	other       int64
}

func main() {
	var (
		targetURL   string
		connections int
		duration    time.Duration
		rampUp      time.Duration
	)

	flag.StringVar(&targetURL, "url", "http://localhost:8080/trades/stream", "trade stream endpoint")
	flag.IntVar(&connections, "conns", 1000, "number of concurrent subscribers to open")
	flag.DurationVar(&duration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "spread connection starts across this window")
	flag.Parse()

	if connections <= 0 {
		log.Fatalf("invalid conns: %d", connections)
	}
	if rampUp == 0 && connections > 100 {
		rampUp = time.Duration(connections/500) * time.Second
		if rampUp < time.Second {
			rampUp = time.Second
		}
		log.Printf("using default ramp-up %s for %d connections", rampUp, connections)
	}

	log.Printf("starting trade stream load: url=%s conns=%d duration=%s ramp=%s",
		targetURL, connections, duration, rampUp)

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     connections + 100,
			MaxIdleConnsPerHost: connections + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
		// streaming responses never time out
		Timeout: 0,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	var (
		stats    counters
		perConn  = make([]int64, connections)
		wg       sync.WaitGroup
		start    = time.Now()
		interval time.Duration
	)
	if rampUp > 0 {
		interval = rampUp / time.Duration(connections)
	}

	for i := 0; i < connections; i++ {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			subscribe(ctx, client, targetURL, &stats, &perConn[id])
		}(i)
	}

	reportTicker := time.NewTicker(5 * time.Second)
	go func() {
		defer reportTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-reportTicker.C:
				log.Printf("status: connected=%d connect_errs=%d stream_errs=%d success=%d failed=%d heartbeats=%d elapsed=%s",
					atomic.LoadInt64(&stats.connected),
					atomic.LoadInt64(&stats.connectErrs),
					atomic.LoadInt64(&stats.streamErrs),
					atomic.LoadInt64(&stats.success),
					atomic.LoadInt64(&stats.failed),
					atomic.LoadInt64(&stats.heartbeats),
					time.Since(start).Truncate(time.Second))
			}
		}
	}()

	wg.Wait()

	elapsed := time.Since(start)
	if elapsed == 0 {
		elapsed = time.Millisecond
	}
	trades := atomic.LoadInt64(&stats.success) + atomic.LoadInt64(&stats.failed) + atomic.LoadInt64(&stats.other)

	minEvents, maxEvents := int64(-1), int64(0)
	for i := range perConn {
		n := atomic.LoadInt64(&perConn[i])
		if minEvents < 0 || n < minEvents {
			minEvents = n
		}
		if n > maxEvents {
			maxEvents = n
		}
	}
	if minEvents < 0 {
		minEvents = 0
	}

	fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d elapsed=%s\n",
		atomic.LoadInt64(&stats.connected),
		atomic.LoadInt64(&stats.connectErrs),
		atomic.LoadInt64(&stats.streamErrs),
		elapsed.Truncate(time.Millisecond))
	fmt.Printf("trades: total=%d success=%d failed=%d other=%d heartbeats=%d trades/s=%.2f\n",
		trades,
		atomic.LoadInt64(&stats.success),
		atomic.LoadInt64(&stats.failed),
		atomic.LoadInt64(&stats.other),
		atomic.LoadInt64(&stats.heartbeats),
		float64(trades)/elapsed.Seconds())
	fmt.Printf("delivery: min_per_conn=%d max_per_conn=%d spread=%d\n",
		minEvents, maxEvents, maxEvents-minEvents)
	if maxEvents > minEvents {
		fmt.Println("uneven delivery detected: slow subscribers are being dropped, consider a larger broadcaster buffer")
	}
}

// subscribe holds one SSE connection open and counts the trade events it
// receives until ctx is cancelled or the stream breaks.
func subscribe(ctx context.Context, client *http.Client, url string, stats *counters, received *int64) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		atomic.AddInt64(&stats.connectErrs, 1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddInt64(&stats.connectErrs, 1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		atomic.AddInt64(&stats.connectErrs, 1)
		return
	}

	atomic.AddInt64(&stats.connected, 1)
	scanner := bufio.NewScanner(resp.Body)
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, ":"):
			atomic.AddInt64(&stats.heartbeats, 1)
		case strings.HasPrefix(line, "data: "):
			data.WriteString(strings.TrimPrefix(line, "data: "))
		case line == "" && data.Len() > 0:
			// blank line terminates the SSE frame
			var event tradeEvent
			if err := json.Unmarshal([]byte(data.String()), &event); err == nil {
				atomic.AddInt64(received, 1)
				switch event.Status {
				case "SUCCESS":
					atomic.AddInt64(&stats.success, 1)
				case "FAILED":
					atomic.AddInt64(&stats.failed, 1)
				default:
					atomic.AddInt64(&stats.other, 1)
				}
			}
			data.Reset()
		}
	}
	if scanner.Err() != nil && ctx.Err() == nil {
		atomic.AddInt64(&stats.streamErrs, 1)
	}
}
