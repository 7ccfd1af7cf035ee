// Command sse_load opens many concurrent subscriptions to the price
// stream, decodes the broadcast batches, and reports per-symbol update
// rates. Useful for sizing the broadcaster's fan-out under load.
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
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/paperhands/paperhands/internal/domain"
)

type streamStats struct {
	connected   int64
	connectErrs int64
	streamErrs  int64
	decodeErrs  int64
	batches     int64
	snapshots   int64

	mu       sync.Mutex
	updates  map[string]int64
	lastSeen map[string]domain.PriceSnapshot
}

func newStreamStats() *streamStats {
	return &streamStats{
		updates:  make(map[string]int64),
		lastSeen: make(map[string]domain.PriceSnapshot),
	}
}

func (s *streamStats) recordBatch(batch []domain.PriceSnapshot) {
	atomic.AddInt64(&s.batches, 1)
	atomic.AddInt64(&s.snapshots, int64(len(batch)))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snapshot := range batch {
		s.updates[snapshot.Symbol]++
		s.lastSeen[snapshot.Symbol] = snapshot
	}
}

func (s *streamStats) symbolReport() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbols := make([]string, 0, len(s.updates))
	for symbol := range s.updates {
		symbols = append(symbols, symbol)
	}
	sort.Slice(symbols, func(i, j int) bool {
		if s.updates[symbols[i]] != s.updates[symbols[j]] {
			return s.updates[symbols[i]] > s.updates[symbols[j]]
		}
		return symbols[i] < symbols[j]
	})

	var b strings.Builder
	for _, symbol := range symbols {
		last := s.lastSeen[symbol]
		fmt.Fprintf(&b, "  %-6s updates=%-8d last=%s change24h=%s%%\n",
			symbol, s.updates[symbol], last.Price.String(), last.Change24hPercent.String())
	}
	return b.String()
}

// sseFrame is one parsed server-sent event.
type sseFrame struct {
	event string
	data  []byte
}

// readFrame accumulates lines until the blank frame terminator.
// Comment lines (heartbeats) are skipped.
func readFrame(reader *bufio.Reader) (sseFrame, error) {
	var frame sseFrame
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return sseFrame{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if frame.event != "" || len(frame.data) > 0 {
				return frame, nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			frame.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			frame.data = append(frame.data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
		}
	}
}

func subscribe(ctx context.Context, client *http.Client, url string, stats *streamStats) {
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
	reader := bufio.NewReader(resp.Body)

	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := readFrame(reader)
		if err != nil {
			if ctx.Err() == nil {
				atomic.AddInt64(&stats.streamErrs, 1)
			}
			return
		}
		if frame.event != "prices" {
			continue
		}

		var batch []domain.PriceSnapshot
		if err := json.Unmarshal(frame.data, &batch); err != nil {
			atomic.AddInt64(&stats.decodeErrs, 1)
			continue
		}
		stats.recordBatch(batch)
	}
}

func main() {
	var (
		targetURL    string
		connections  int
		testDuration time.Duration
		rampUp       time.Duration
	)

	flag.StringVar(&targetURL, "url", "http://localhost:8080/api/market/prices/stream", "price stream URL")
	flag.IntVar(&connections, "conns", 1000, "number of concurrent subscriptions to open")
	flag.DurationVar(&testDuration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "ramp-up duration (spread connection starts across this window)")
	flag.Parse()

	if connections <= 0 {
		log.Fatalf("invalid conns: %d", connections)
	}

	if rampUp == 0 && connections > 100 {
		// default ramp-up: 1 second per 500 connections
		rampUp = time.Duration(connections/500) * time.Second
		if rampUp < 1*time.Second {
			rampUp = 1 * time.Second
		}
		log.Printf("no ramp-up specified for high connection count, using default: %s", rampUp)
	}

	log.Printf("starting price stream load: url=%s conns=%d duration=%s ramp=%s", targetURL, connections, testDuration, rampUp)

	transport := &http.Transport{
		MaxConnsPerHost:     connections + 100,
		MaxIdleConns:        connections + 100,
		MaxIdleConnsPerHost: connections + 100,
		DisableCompression:  true,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   0, // streaming
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("caught signal: %s, shutting down...", sig)
		case <-ctx.Done():
			return
		}

		cancel()
	}()

	if testDuration > 0 {
		go func() {
			timer := time.NewTimer(testDuration)
			defer timer.Stop()
			select {
			case <-timer.C:
				log.Printf("duration reached, stopping...")
				cancel()
			case <-ctx.Done():
				return
			}
		}()
	}

	stats := newStreamStats()

	var wg sync.WaitGroup

	start := time.Now()

	var interval time.Duration
	if rampUp > 0 && connections > 0 {
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
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			subscribe(ctx, client, targetURL, stats)
		}()
	}

	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Printf("status: connected=%d connect_errs=%d stream_errs=%d decode_errs=%d batches=%d snapshots=%d elapsed=%s",
					atomic.LoadInt64(&stats.connected),
					atomic.LoadInt64(&stats.connectErrs),
					atomic.LoadInt64(&stats.streamErrs),
					atomic.LoadInt64(&stats.decodeErrs),
					atomic.LoadInt64(&stats.batches),
					atomic.LoadInt64(&stats.snapshots),
					time.Since(start).Truncate(time.Second),
				)
			}
		}
	}()

	wg.Wait()
	cancel()

	elapsed := time.Since(start)
	if elapsed == 0 {
		elapsed = time.Millisecond
	}
	batchesPerSec := float64(atomic.LoadInt64(&stats.batches)) / elapsed.Seconds()

	fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d decode_errs=%d batches=%d snapshots=%d elapsed=%s batches/s=%.2f\n",
		atomic.LoadInt64(&stats.connected),
		atomic.LoadInt64(&stats.connectErrs),
		atomic.LoadInt64(&stats.streamErrs),
		atomic.LoadInt64(&stats.decodeErrs),
		atomic.LoadInt64(&stats.batches),
		atomic.LoadInt64(&stats.snapshots),
		elapsed.Truncate(time.Millisecond),
		batchesPerSec,
	)
	if report := stats.symbolReport(); report != "" {
		fmt.Printf("symbols:\n%s", report)
	}
}
