package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type latencySample struct {
	dur time.Duration
}

type frame struct {
	ID      uint64          `json:"id,omitempty"`
	Event   string          `json:"event"`
	OK      *bool           `json:"ok,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "websocket address to target")
	conversation := flag.String("conversation", "conv-loadtest", "conversation id used by all clients")
	secret := flag.String("secret", "", "shared HMAC secret used to mint handshake tokens")
	userPrefix := flag.String("user-prefix", "loadtest-user-", "user id prefix; users must already exist")
	clients := flag.Int("clients", 1000, "number of concurrent websocket clients")
	messages := flag.Int("messages", 20, "number of messages to send")
	interval := flag.Duration("interval", 200*time.Millisecond, "delay between messages")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := log.With().Str("conversation", *conversation).Logger()

	if *secret == "" {
		logger.Fatal().Msg("-secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	latencyCh := make(chan latencySample, *clients**messages)
	var wg sync.WaitGroup

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			userID := fmt.Sprintf("%s%d", *userPrefix, id)

			token, err := mintToken(*secret, userID)
			if err != nil {
				logger.Fatal().Err(err).Msg("failed to mint token")
			}

			u, err := url.Parse(*addr)
			if err != nil {
				logger.Fatal().Err(err).Msg("invalid websocket address")
			}
			q := u.Query()
			q.Set("token", token)
			u.RawQuery = q.Encode()

			conn, _, err := dialer.DialContext(ctx, u.String(), nil)
			if err != nil {
				logger.Error().Err(err).Str("user", userID).Msg("dial failed")
				return
			}
			defer conn.Close()

			if err := joinConversation(conn, *conversation); err != nil {
				logger.Error().Err(err).Str("user", userID).Msg("join failed")
				return
			}

			go readerLoop(ctx, conn, latencyCh, logger)

			if id == 0 {
				sendTicker := time.NewTicker(*interval)
				defer sendTicker.Stop()
				for j := 0; j < *messages; j++ {
					select {
					case <-ctx.Done():
						return
					case <-sendTicker.C:
						if err := sendMessage(conn, *conversation); err != nil {
							logger.Error().Err(err).Msg("failed to send message")
							return
						}
					}
				}
				stop()
			} else {
				<-ctx.Done()
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(latencyCh)
	}()

	<-ctx.Done()
	report(latencyCh, logger)
}

func mintToken(secret, userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

var frameID atomic.Uint64

func send(conn *websocket.Conn, event string, payload any) (uint64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	id := frameID.Add(1)
	encoded, err := json.Marshal(frame{ID: id, Event: event, Data: data})
	if err != nil {
		return 0, err
	}
	return id, conn.WriteMessage(websocket.TextMessage, encoded)
}

func joinConversation(conn *websocket.Conn, conversationID string) error {
	id, err := send(conn, "conversation:join", map[string]string{"conversationId": conversationID})
	if err != nil {
		return err
	}

	// Synchronous handshake: nothing else arrives before join is acked.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		if f.Event != "ack" || f.ID != id {
			continue
		}
		if f.OK == nil || !*f.OK {
			return fmt.Errorf("join rejected: %s", f.Message)
		}
		return nil
	}
}

func sendMessage(conn *websocket.Conn, conversationID string) error {
	_, err := send(conn, "conversation:message", map[string]string{
		"conversationId": conversationID,
		"text":           time.Now().UTC().Format(time.RFC3339Nano),
	})
	return err
}

func readerLoop(ctx context.Context, conn *websocket.Conn, latencies chan<- latencySample, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("read error")
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.Warn().Err(err).Msg("failed to decode frame")
			continue
		}
		if f.Event != "conversation:newMessage" {
			continue
		}

		var payload struct {
			Message struct {
				Text string `json:"text"`
			} `json:"message"`
		}
		if err := json.Unmarshal(f.Data, &payload); err != nil {
			continue
		}
		if ts, err := time.Parse(time.RFC3339Nano, payload.Message.Text); err == nil {
			latencies <- latencySample{dur: time.Since(ts)}
		}
	}
}

func report(samples <-chan latencySample, logger zerolog.Logger) {
	var count int
	var total time.Duration
	var max time.Duration
	var under50ms int

	for s := range samples {
		count++
		total += s.dur
		if s.dur > max {
			max = s.dur
		}
		if s.dur < 50*time.Millisecond {
			under50ms++
		}
	}

	if count == 0 {
		fmt.Fprintln(os.Stdout, "no samples collected")
		return
	}

	avg := time.Duration(int64(math.Round(float64(total) / float64(count))))
	pct := (float64(under50ms) / float64(count)) * 100

	fmt.Fprintf(os.Stdout, "Samples: %d\nAvg latency: %s\nMax latency: %s\n<50ms: %.2f%%\n", count, avg, max, pct)
	if pct < 95 {
		logger.Warn().Msg("less than 95% of messages met the 50ms target")
	}
}
