package ngrok

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultBin = "ngrok"
	defaultAPI = "http://127.0.0.1:4040/api/tunnels"
)

type tunnelsResponse struct {
	Tunnels []struct {
		Name      string `json:"name"`
		PublicURL string `json:"public_url"`
		Proto     string `json:"proto"`
		Config    struct {
			Addr string `json:"addr"`
		} `json:"config"`
	} `json:"tunnels"`
}

type Config struct {
	// Bin is the ngrok binary, "ngrok" by default.
	Bin string
	// API is the tunnels endpoint of the local ngrok agent.
	API string
	// Timeout bounds the wait for the tunnel to come up.
	Timeout time.Duration
	// Poll is the interval between tunnel lookups.
	Poll  time.Duration
	Debug bool
}

// Tunnel is a running ngrok agent exposing a local port.
type Tunnel struct {
	URL    string
	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches an http tunnel to the local port and waits until its public
// url is reported by the agent.
func Start(ctx context.Context, port string, cfg *Config) (*Tunnel, error) {
	bin := cfg.Bin
	if bin == "" {
		bin = defaultBin
	}
	api := cfg.API
	if api == "" {
		api = defaultAPI
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}
	poll := cfg.Poll
	if poll == 0 {
		poll = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &Tunnel{cancel: cancel, done: make(chan struct{})}
	exited := make(chan error, 1)
	go func() {
		defer close(t.done)
		cmd := exec.CommandContext(ctx, bin, "http", port)
		if cfg.Debug {
			log.Println("ngrok:", cmd.String())
		}
		data, err := cmd.CombinedOutput()
		if err != nil && ctx.Err() == nil {
			err = fmt.Errorf("ngrok: %w: %s", err, strings.TrimSpace(string(data)))
			log.Println(err)
		}
		if err == nil && ctx.Err() == nil {
			err = errors.New("ngrok: agent exited")
		}
		exited <- err
	}()

	client := &http.Client{Timeout: 5 * time.Second}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		u, err := lookup(ctx, client, api, port)
		if err == nil && u != "" {
			t.URL = u
			return t, nil
		}
		if cfg.Debug && err != nil {
			log.Println("ngrok: waiting for tunnel:", err)
		}
		select {
		case err := <-exited:
			cancel()
			if err == nil {
				err = ctx.Err()
			}
			return nil, fmt.Errorf("ngrok: couldn't start: %w", err)
		case <-ctx.Done():
			t.Close()
			return nil, fmt.Errorf("ngrok: couldn't start: %w", ctx.Err())
		case <-deadline.C:
			t.Close()
			return nil, fmt.Errorf("ngrok: tunnel not ready after %s", timeout)
		case <-ticker.C:
		}
	}
}

// Close stops the agent and waits for it to exit.
func (t *Tunnel) Close() {
	t.cancel()
	<-t.done
}

func lookup(ctx context.Context, client *http.Client, api, port string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api, nil)
	if err != nil {
		return "", fmt.Errorf("ngrok: couldn't create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ngrok: couldn't get tunnels: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ngrok: couldn't read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ngrok: unexpected status %d: %s", resp.StatusCode, string(data))
	}
	var tr tunnelsResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return "", fmt.Errorf("ngrok: couldn't unmarshal response (%s): %w", string(data), err)
	}
	for _, tun := range tr.Tunnels {
		if tunnelPort(tun.Config.Addr) != port {
			continue
		}
		return strings.Replace(tun.PublicURL, "tcp://", "http://", 1), nil
	}
	return "", nil
}

// tunnelPort extracts the port of addresses like "http://localhost:3001",
// "localhost:3001" or "3001".
func tunnelPort(addr string) string {
	addr = strings.TrimPrefix(addr, "http://")
	addr = strings.TrimPrefix(addr, "https://")
	if _, port, err := net.SplitHostPort(addr); err == nil {
		return port
	}
	return addr
}
