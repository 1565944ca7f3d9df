package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type remainingFrame struct {
	Filename             string  `json:"filename"`
	TimeRemaining        float64 `json:"timeRemaining"`
	TimeRemainingSeconds int64   `json:"timeRemainingSeconds"`
	Expired              bool    `json:"expired"`
	Error                string  `json:"error"`
}

func newRemainingCmd() *cobra.Command {
	var (
		serverURL string
		token     string
		watch     bool
	)
	cmd := &cobra.Command{
		Use:   "remaining <artifact-id>",
		Short: "Ask a running service how long an artifact stays downloadable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("AUTH_TOKEN")
			}
			base, err := url.Parse(strings.TrimRight(serverURL, "/"))
			if err != nil {
				return fmt.Errorf("parse server url: %w", err)
			}
			target := base.JoinPath("time-remaining", args[0])
			header := http.Header{}
			if token != "" {
				header.Set("Authorization", "Bearer "+token)
			}
			if watch {
				return watchRemaining(cmd, target, header)
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, target.String(), nil)
			if err != nil {
				return err
			}
			req.Header = header
			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			var frame remainingFrame
			if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%s: %s", resp.Status, frame.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %ds remaining\n", frame.Filename, frame.TimeRemainingSeconds)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&serverURL, "server", "http://localhost:3000", "Base URL of the FlatDrop service")
	f.StringVar(&token, "token", "", "Bearer token (default $AUTH_TOKEN)")
	f.BoolVarP(&watch, "watch", "w", false, "Stream the countdown until the artifact expires")
	return cmd
}

func watchRemaining(cmd *cobra.Command, target *url.URL, header http.Header) error {
	ws := *target
	ws.Path += "/stream"
	switch ws.Scheme {
	case "https":
		ws.Scheme = "wss"
	default:
		ws.Scheme = "ws"
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(cmd.Context(), ws.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("open stream: %s", resp.Status)
		}
		return fmt.Errorf("open stream: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(cmd.Context(), func() { conn.Close() })
	defer stop()

	out := cmd.OutOrStdout()
	for {
		var frame remainingFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if cmd.Context().Err() != nil {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}
		if frame.Expired {
			fmt.Fprintf(out, "%s: expired\n", frame.Filename)
			return nil
		}
		fmt.Fprintf(out, "%s: %ds remaining\n", frame.Filename, frame.TimeRemainingSeconds)
	}
}
