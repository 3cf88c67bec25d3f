package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/logger"
	"github.com/vilass86/cardgame/internal/ws"

	"github.com/gorilla/websocket"
)

// ws_smoke drives one session through a running server started with
// AUTH_DEV_TOKENS=true and the in-process oracle, printing the event stream.
func main() {
	api := flag.String("api", "http://127.0.0.1:8080", "API base URL")
	stake := flag.Int64("stake", 100, "stake per player")
	flag.Parse()
	logger.Init(os.Getenv("LOG_LEVEL"), false)

	c := &client{base: strings.TrimRight(*api, "/"), http: &http.Client{Timeout: 10 * time.Second}}

	tokenA := c.token("smokeA", *stake)
	tokenB := c.token("smokeB", *stake)

	var sess struct {
		ID string `json:"id"`
	}
	c.call(http.MethodPost, "/api/v1/sessions", tokenA, map[string]interface{}{"stake": *stake, "capacity": 2, "ttl_seconds": 120}, &sess)
	logger.Info("session created", "session_id", sess.ID)

	// the default API host is 127.0.0.1 to avoid resolving to [::1]
	wsURL := strings.Replace(c.base, "http", "ws", 1) + "/ws/sessions/" + sess.ID + "?token=" + tokenA
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		logger.Fatal("dial ws", "error", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(15 * time.Second))
			var msg ws.Message
			if err := conn.ReadJSON(&msg); err != nil {
				logger.Warn("ws read", "error", err)
				return
			}
			switch msg.Type {
			case ws.MsgEvent:
				fmt.Printf("event %-22s state=%-22s %s %d\n", msg.Event.Kind, msg.Event.State, msg.Event.Address, msg.Event.Amount)
				if msg.Event.Kind == domain.EventSessionResolved {
					return
				}
			default:
				fmt.Printf("frame %s\n", msg.Type)
			}
		}
	}()

	base := "/api/v1/sessions/" + sess.ID
	c.call(http.MethodPost, base+"/join", tokenA, nil, nil)
	c.call(http.MethodPost, base+"/join", tokenB, nil, nil)
	c.call(http.MethodPost, base+"/lock", tokenA, nil, nil)
	c.call(http.MethodPost, base+"/randomness", tokenA, nil, nil)

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Fatal("timed out waiting for resolution")
	}

	var v struct {
		Matches bool   `json:"matches"`
		Digest  string `json:"digest"`
	}
	c.call(http.MethodGet, base+"/verify", "", nil, &v)
	logger.Info("smoke test finished", "matches", v.Matches, "digest", v.Digest)
}

type client struct {
	base string
	http *http.Client
}

func (c *client) token(addr string, deposit int64) string {
	var out struct {
		Token string `json:"token"`
	}
	c.call(http.MethodPost, "/api/v1/auth/token", "", map[string]interface{}{"address": addr, "deposit": deposit}, &out)
	return out.Token
}

func (c *client) call(method, path, token string, body, out interface{}) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		logger.Fatal("build request", "error", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Fatal("request failed", "path", path, "error", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		logger.Fatal("request rejected", "path", path, "status", resp.StatusCode, "body", e)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			logger.Fatal("decode response", "path", path, "error", err)
		}
	}
}
