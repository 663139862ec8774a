package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SignupResp is the server's response to POST /auth/signup.
type SignupResp struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// frame is one socket message as broadcast by the server.
type frame struct {
	Event string `json:"event"`
	Data  struct {
		Action string `json:"action"`
		Post   struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"post"`
	} `json:"data"`
}

func main() {
	// CLI flags
	var serverAddr string
	var listeners, posts int
	var pollTimeout int
	var insecure bool

	flag.StringVar(&serverAddr, "server", "http://localhost:5100", "server base URL")
	flag.IntVar(&listeners, "listeners", 50, "number of websocket clients")
	flag.IntVar(&posts, "posts", 100, "number of posts to publish")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for the last broadcast")
	flag.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	flag.Parse()

	ctx := context.Background()
	tlsCfg := &tls.Config{InsecureSkipVerify: insecure}
	client := &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
		Timeout:   10 * time.Second,
	}

	// --- 1) Create the publishing user ---
	b, _ := json.Marshal(map[string]string{"name": "e2e-publisher"})
	resp, err := client.Post(serverAddr+"/auth/signup", "application/json", bytes.NewReader(b))
	if err != nil {
		fmt.Printf("signup error: %v\n", err)
		os.Exit(1)
	}
	var user SignupResp
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		resp.Body.Close()
		fmt.Printf("decode signup error: %v\n", err)
		os.Exit(1)
	}
	resp.Body.Close()

	// --- 2) Connect websocket listeners ---
	wsURL := "ws" + strings.TrimPrefix(serverAddr, "http") + "/socket"
	dialer := websocket.Dialer{TLSClientConfig: tlsCfg, HandshakeTimeout: 5 * time.Second}

	var mu sync.Mutex
	sent := make(map[string]time.Time, posts)
	var latencies []float64
	received := 0

	var listenWG sync.WaitGroup
	conns := make([]*websocket.Conn, 0, listeners)
	fmt.Printf("Connecting %d listeners...\n", listeners)
	for i := 0; i < listeners; i++ {
		conn, _, err := dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			fmt.Printf("dial error: %v\n", err)
			os.Exit(1)
		}
		conns = append(conns, conn)

		listenWG.Add(1)
		go func(c *websocket.Conn) {
			defer listenWG.Done()
			for {
				var f frame
				if err := c.ReadJSON(&f); err != nil {
					return
				}
				if f.Event != "posts" || f.Data.Action != "create" {
					continue
				}
				at := time.Now()
				mu.Lock()
				if start, ok := sent[f.Data.Post.Title]; ok {
					latencies = append(latencies, at.Sub(start).Seconds()*1000)
					received++
				}
				mu.Unlock()
			}
		}(conn)
	}

	// --- 3) Publish posts sequentially ---
	fmt.Printf("Publishing %d posts...\n", posts)
	for i := 0; i < posts; i++ {
		title := fmt.Sprintf("e2e-%d-%d", i, time.Now().UnixNano())
		req := createRequest(ctx, serverAddr, user.Token, title)

		mu.Lock()
		sent[title] = time.Now()
		mu.Unlock()

		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf("post error: %v\n", err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			fmt.Printf("post status %d\n", resp.StatusCode)
		}
	}

	// --- 4) Wait for deliveries ---
	expected := posts * listeners
	deadline := time.Now().Add(time.Duration(pollTimeout) * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := received >= expected
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	for _, c := range conns {
		c.Close()
	}
	listenWG.Wait()

	// --- 5) Compute latency statistics and export to CSV ---
	if len(latencies) == 0 {
		fmt.Println("No broadcasts received.")
		return
	}
	sort.Float64s(latencies)
	fmt.Printf("Broadcast stats (ms): delivered=%d/%d p50=%.2f p90=%.2f p99=%.2f max=%.2f\n",
		len(latencies), expected, percentile(latencies, 50), percentile(latencies, 90),
		percentile(latencies, 99), latencies[len(latencies)-1])

	f, err := os.Create("e2e_latencies.csv")
	if err != nil {
		fmt.Printf("Failed to create CSV file: %v\n", err)
		return
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	w.Write([]string{"latency_ms"})
	for _, v := range latencies {
		w.Write([]string{fmt.Sprintf("%.3f", v)})
	}
	fmt.Println("Saved e2e_latencies.csv")
}

func createRequest(ctx context.Context, server, token, title string) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("title", title)
	mw.WriteField("content", "broadcast latency sample")
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="sample.png"`)
	h.Set("Content-Type", "image/png")
	part, _ := mw.CreatePart(h)
	part.Write([]byte("\x89PNG\r\n\x1a\n"))
	mw.Close()

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, server+"/feed/post", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// percentile calculates the requested percentile using linear interpolation.
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
