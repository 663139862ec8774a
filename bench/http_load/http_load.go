package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SignupResp is the server's response to POST /auth/signup.
type SignupResp struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// pngStub is enough bytes for the server to store; content is not decoded.
var pngStub = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func main() {
	// --- Command-line flags ---
	var server string
	var duration int
	var concurrency int
	var writeRatio float64
	var csvFile string
	var trimPercent float64
	var insecure bool

	flag.StringVar(&server, "server", "http://localhost:5100", "server base URL")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "number of concurrent goroutines / users")
	flag.Float64Var(&writeRatio, "writes", 0.2, "fraction of requests that create posts, the rest read the feed")
	flag.StringVar(&csvFile, "csv", "latencies.csv", "CSV file to save latencies")
	flag.Float64Var(&trimPercent, "trim", 1.0, "percent of latency to trim from top and bottom for trimmed mean")
	flag.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	flag.Parse()

	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure},
		},
		Timeout: 10 * time.Second,
	}

	// --- Create users for each goroutine ---
	fmt.Printf("Creating %d users...\n", concurrency)
	users := make([]SignupResp, concurrency)
	for i := 0; i < concurrency; i++ {
		b, _ := json.Marshal(map[string]string{"name": fmt.Sprintf("load-%d-%d", i, time.Now().UnixNano()%1e6)})
		resp, err := client.Post(server+"/auth/signup", "application/json", bytes.NewReader(b))
		if err != nil {
			panic(fmt.Sprintf("failed to create user: %v", err))
		}
		if err := json.NewDecoder(resp.Body).Decode(&users[i]); err != nil {
			resp.Body.Close()
			panic(fmt.Sprintf("failed to decode signup response: %v", err))
		}
		resp.Body.Close()
	}
	fmt.Println("Users created.")

	stopTime := time.Now().Add(time.Duration(duration) * time.Second)
	var wg sync.WaitGroup

	var requests, successes, errors4xx, errors5xx int64
	readLat := make([][]float64, concurrency)
	writeLat := make([][]float64, concurrency)

	// --- Start concurrent goroutines for load test ---
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(idx)))
			user := users[idx]

			for time.Now().Before(stopTime) {
				write := rng.Float64() < writeRatio
				var req *http.Request
				if write {
					req = createRequest(server, user.Token, idx)
				} else {
					req, _ = http.NewRequestWithContext(context.Background(), http.MethodGet,
						fmt.Sprintf("%s/feed/posts?page=%d", server, 1+rng.Intn(5)), nil)
				}

				start := time.Now()
				resp, err := client.Do(req)
				lat := time.Since(start).Seconds() * 1000
				atomic.AddInt64(&requests, 1)
				if write {
					writeLat[idx] = append(writeLat[idx], lat)
				} else {
					readLat[idx] = append(readLat[idx], lat)
				}
				if err != nil {
					fmt.Printf("Request error: %v\n", err)
					continue
				}

				switch {
				case resp.StatusCode < 300:
					atomic.AddInt64(&successes, 1)
				case resp.StatusCode < 500:
					atomic.AddInt64(&errors4xx, 1)
				default:
					atomic.AddInt64(&errors5xx, 1)
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}(i)
	}

	wg.Wait()

	reads := merge(readLat)
	writes := merge(writeLat)

	fmt.Printf("Requests: %d  Successes: %d  4xx: %d  5xx: %d\n", requests, successes, errors4xx, errors5xx)
	report("read", reads, trimPercent)
	report("write", writes, trimPercent)

	// --- Save latencies to CSV ---
	f, err := os.Create(csvFile)
	if err != nil {
		fmt.Printf("Failed to create CSV file: %v\n", err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	w.Write([]string{"kind", "latency_ms"})
	for _, d := range reads {
		w.Write([]string{"read", fmt.Sprintf("%.3f", d)})
	}
	for _, d := range writes {
		w.Write([]string{"write", fmt.Sprintf("%.3f", d)})
	}
	fmt.Printf("Saved latencies to %s\n", csvFile)
}

// createRequest builds a multipart POST /feed/post with a small png.
func createRequest(server, token string, idx int) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("title", fmt.Sprintf("load post %d", idx))
	mw.WriteField("content", fmt.Sprintf("generated at %s", time.Now().Format(time.RFC3339Nano)))
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="load.png"`)
	h.Set("Content-Type", "image/png")
	part, _ := mw.CreatePart(h)
	part.Write(pngStub)
	mw.Close()

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, server+"/feed/post", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func merge(slices [][]float64) []float64 {
	var all []float64
	for _, s := range slices {
		all = append(all, s...)
	}
	sort.Float64s(all)
	return all
}

func report(kind string, data []float64, trimPercent float64) {
	fmt.Printf("%s latency (ms): n=%d trimmed_mean=%.2f p50=%.2f p90=%.2f p99=%.2f\n", kind, len(data),
		trimmedMean(data, trimPercent), percentile(data, 50), percentile(data, 90), percentile(data, 99))
}

// trimmedMean calculates mean latency after trimming top/bottom trimPercent values
func trimmedMean(data []float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	trimmed := data[trim : len(data)-trim]
	if len(trimmed) == 0 {
		return 0
	}
	var sum float64
	for _, v := range trimmed {
		sum += v
	}
	return sum / float64(len(trimmed))
}

// percentile calculates the p-th percentile from sorted data
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	return data[f]*(float64(c)-k) + data[c]*(k-float64(f))
}
