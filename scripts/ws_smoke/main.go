// Command ws_smoke logs in, opens a live connection and prints every event
// it receives. With -peer and -text it also sends one message.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-dm/internal/log"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ws_smoke: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("addr", "http://localhost:8080", "server base URL")
	email := flag.String("email", "tester@example.com", "account email")
	password := flag.String("password", "password123", "account password")
	peer := flag.String("peer", "", "user id to message (optional)")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	logger := log.New("debug")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	token, err := login(ctx, *base, *email, *password)
	if err != nil {
		return err
	}
	logger.Info().Str("email", *email).Msg("logged in")

	wsURL := strings.Replace(*base, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(token)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if *peer != "" {
		outcome, err := send(ctx, *base, token, *peer, *text)
		if err != nil {
			return err
		}
		logger.Info().Str("peer", *peer).Str("outcome", outcome).Msg("message sent")
	}

	for {
		var frame struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("timeout reached, exiting")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		if frame.Error != nil {
			logger.Warn().Str("code", frame.Error.Code).Str("msg", frame.Error.Msg).Msg("error frame")
			continue
		}
		logger.Info().Str("event", frame.Event).RawJSON("data", frame.Data).Msg("event")
	}
}

func login(ctx context.Context, base, email, password string) (string, error) {
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := postJSON(ctx, http.MethodPost, base+"/api/auth/login", "", body, &out); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if !out.Success {
		return "", fmt.Errorf("login: %s", out.Message)
	}
	return out.Token, nil
}

func send(ctx context.Context, base, token, peer, text string) (string, error) {
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Outcome string `json:"outcome"`
	}
	body := map[string]string{"text": text}
	if err := postJSON(ctx, http.MethodPost, base+"/api/messages/send/"+url.PathEscape(peer), token, body, &out); err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	if !out.Success {
		return "", fmt.Errorf("send: %s", out.Message)
	}
	return out.Outcome, nil
}

func postJSON(ctx context.Context, method, target, token string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}
