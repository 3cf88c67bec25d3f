package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vilass86/cardgame/internal/db"
	"github.com/vilass86/cardgame/internal/logger"
	"github.com/vilass86/cardgame/internal/randomness"
	"github.com/vilass86/cardgame/internal/vrf"

	"github.com/joho/godotenv"
)

// oracle_sim plays the external randomness provider: it tails the request
// stream, proves each alpha and posts the answer back to the API.
func main() {
	api := flag.String("api", "http://127.0.0.1:8080", "API base URL")
	from := flag.String("from", "$", "stream ID to start after; 0 replays the whole stream")
	delay := flag.Duration("delay", 0, "wait before answering each request")
	flag.Parse()

	_ = godotenv.Load()
	logger.Init(os.Getenv("LOG_LEVEL"), false)

	key, err := vrf.ParsePrivateKey(os.Getenv("VRF_SECRET_KEY"))
	if err != nil {
		logger.Fatal("VRF_SECRET_KEY missing or invalid", "error", err)
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		logger.Fatal("REDIS_ADDR not set")
	}
	rdb, err := db.ConnectRedis(addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		logger.Fatal("failed to connect redis", "error", err)
	}
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 10 * time.Second}
	consumer := randomness.NewStreamConsumer(rdb, os.Getenv("ORACLE_STREAM"), *from)
	logger.Info("oracle listening", "public_key", key.Public().Hex(), "api", *api)

	err = consumer.Run(ctx, func(ctx context.Context, r randomness.StreamRequest) error {
		if !r.ExpiresAt.IsZero() && time.Now().After(r.ExpiresAt) {
			return fmt.Errorf("request expired at %s", r.ExpiresAt.Format(time.RFC3339))
		}
		if *delay > 0 {
			time.Sleep(*delay)
		}
		raw, proof, err := randomness.Respond(key, r.Request())
		if err != nil {
			return err
		}
		return post(ctx, client, *api+"/api/v1/randomness/fulfill", map[string]string{
			"nonce":     r.Nonce,
			"raw_value": hex.EncodeToString(raw),
			"proof":     hex.EncodeToString(proof),
		}, r)
	})
	if err != nil {
		logger.Fatal("stream consumer stopped", "error", err)
	}
}

func post(ctx context.Context, client *http.Client, url string, body interface{}, r randomness.StreamRequest) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		Error string `json:"error"`
		Code  string `json:"code"`
		State string `json:"state"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fulfill rejected: %d %s %s", resp.StatusCode, out.Code, out.Error)
	}
	logger.Info("randomness fulfilled", "nonce", r.Nonce, "session_id", r.SessionID, "state", out.State)
	return nil
}
