// Command loadtest drives pairs of users through the marketplace: a seller
// lists a username, a buyer bids on it, and both chat over websockets.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	baseURL  string
	pairs    int
	messages int
	timeout  time.Duration
}

type stats struct {
	pairsOK   atomic.Int64
	failures  atomic.Int64
	sent      atomic.Int64
	delivered atomic.Int64
}

type session struct {
	Token string `json:"access_token"`
	ID    string `json:"id"`
}

func main() {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "loadtest",
		Short:        "Stress the marketplace with seller/buyer pairs",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer log.Sync()
			return run(cmd.Context(), opts, log)
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "server base URL")
	cmd.Flags().IntVar(&opts.pairs, "pairs", 50, "number of seller/buyer pairs")
	cmd.Flags().IntVar(&opts.messages, "messages", 20, "chat messages per user")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-pair chat timeout")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, log *zap.Logger) error {
	log.Info("starting load test", zap.Int("users", opts.pairs*2), zap.Int("messages_per_user", opts.messages))
	start := time.Now()

	var (
		st stats
		wg sync.WaitGroup
	)
	for i := 0; i < opts.pairs; i++ {
		wg.Add(1)
		go func(pair int) {
			defer wg.Done()
			if err := runPair(ctx, opts, &st); err != nil {
				st.failures.Add(1)
				log.Warn("pair failed", zap.Int("pair", pair), zap.Error(err))
				return
			}
			st.pairsOK.Add(1)
		}(i)
	}
	wg.Wait()

	log.Info("load test complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int64("pairs_ok", st.pairsOK.Load()),
		zap.Int64("pairs_failed", st.failures.Load()),
		zap.Int64("messages_sent", st.sent.Load()),
		zap.Int64("messages_delivered", st.delivered.Load()),
	)
	if st.failures.Load() > 0 {
		return fmt.Errorf("%d of %d pairs failed", st.failures.Load(), opts.pairs)
	}
	return nil
}

func runPair(ctx context.Context, opts options, st *stats) error {
	tag := uuid.NewString()[:8]
	c := &apiClient{base: strings.TrimRight(opts.baseURL, "/")}

	seller, err := c.authenticate(ctx, "lt_"+tag+"_s")
	if err != nil {
		return fmt.Errorf("seller auth: %w", err)
	}
	buyer, err := c.authenticate(ctx, "lt_"+tag+"_b")
	if err != nil {
		return fmt.Errorf("buyer auth: %w", err)
	}

	if err := c.do(ctx, seller.Token, http.MethodPost, "/api/subscription", map[string]string{"tier": "pro"}, nil); err != nil {
		return fmt.Errorf("subscribe seller: %w", err)
	}
	if err := c.do(ctx, buyer.Token, http.MethodPost, "/api/subscription", map[string]string{"tier": "basic"}, nil); err != nil {
		return fmt.Errorf("subscribe buyer: %w", err)
	}

	var l struct {
		ID string `json:"id"`
	}
	err = c.do(ctx, seller.Token, http.MethodPost, "/api/listings", map[string]any{
		"platform": "instagram", "handle": "lt" + tag, "kind": "username", "price_cents": 25_00,
	}, &l)
	if err != nil {
		return fmt.Errorf("create listing: %w", err)
	}
	if err := c.do(ctx, buyer.Token, http.MethodPost, "/api/listings/"+l.ID+"/bids", map[string]int64{"amount_cents": 20_00}, nil); err != nil {
		return fmt.Errorf("bid: %w", err)
	}

	var conv struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, buyer.Token, http.MethodPost, "/api/conversations", map[string]string{"user_id": seller.ID}, &conv); err != nil {
		return fmt.Errorf("start conversation: %w", err)
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, s := range []session{seller, buyer} {
		wg.Add(1)
		go func(s session) {
			defer wg.Done()
			errs <- chatter(ctx, opts, st, c.wsURL(), s.Token, conv.ID)
		}(s)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// chatter sends opts.messages frames and reads until it has seen every message
// in the conversation, its own included.
func chatter(ctx context.Context, opts options, st *stats, url, token, conversationID string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url+"?token="+token, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	for i := 0; i < opts.messages; i++ {
		frame := map[string]string{"conversation_id": conversationID, "content": fmt.Sprintf("msg %d", i)}
		if err := conn.WriteJSON(frame); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		st.sent.Add(1)
		time.Sleep(10 * time.Millisecond)
	}

	want := opts.messages * 2
	conn.SetReadDeadline(time.Now().Add(opts.timeout))
	for got := 0; got < want; {
		var f struct {
			Type  string `json:"type"`
			Error string `json:"error"`
		}
		if err := conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("read after %d/%d messages: %w", got, want, err)
		}
		if f.Type == "error" {
			return fmt.Errorf("server rejected frame: %s", f.Error)
		}
		got++
		st.delivered.Add(1)
	}
	return nil
}

type apiClient struct {
	base string
}

func (c *apiClient) wsURL() string {
	return "ws" + strings.TrimPrefix(c.base, "http") + "/ws"
}

// authenticate registers username (an existing account is fine) and logs in.
func (c *apiClient) authenticate(ctx context.Context, username string) (session, error) {
	creds := map[string]string{"username": username, "password": "password123"}
	_ = c.do(ctx, "", http.MethodPost, "/register", creds, nil)

	var s session
	if err := c.do(ctx, "", http.MethodPost, "/login", creds, &s); err != nil {
		return session{}, err
	}
	return s, nil
}

func (c *apiClient) do(ctx context.Context, token, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
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

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
