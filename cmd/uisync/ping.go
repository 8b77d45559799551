package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/websocket"

	"uisync/internal/protocol"
)

func pingCmd() *cobra.Command {
	var (
		serverURL string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check a running server and print its leader directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ping(cmd.OutOrStdout(), serverURL, timeout)
		},
	}

	cmd.Flags().StringVar(&serverURL, "url", "ws://localhost:8000/ws", "Websocket URL of the server")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Overall timeout")

	return cmd
}

func ping(out io.Writer, serverURL string, timeout time.Duration) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	origin := "http://" + u.Host + "/"

	ws, err := websocket.Dial(serverURL, "", origin)
	if err != nil {
		return fmt.Errorf("dial %s: %w", serverURL, err)
	}
	defer ws.Close()

	if err := ws.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}

	data, err := awaitEvent(ws, protocol.EventConfirmConnect)
	if err != nil {
		return err
	}
	var dir protocol.Directory
	if err := json.Unmarshal(data, &dir); err != nil {
		return fmt.Errorf("decode %s: %w", protocol.EventConfirmConnect, err)
	}
	printDirectory(out, dir.Leaders)

	start := time.Now()
	if err := websocket.JSON.Send(ws, protocol.Frame{Event: protocol.EventPing}); err != nil {
		return fmt.Errorf("send %s: %w", protocol.EventPing, err)
	}
	if _, err := awaitEvent(ws, protocol.EventPong); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s from %s in %s\n", protocol.EventPong, u.Host, time.Since(start).Round(time.Microsecond))
	return nil
}

// awaitEvent skips broadcasts that arrive before the wanted event.
func awaitEvent(ws *websocket.Conn, event string) (json.RawMessage, error) {
	for {
		var f protocol.Frame
		if err := websocket.JSON.Receive(ws, &f); err != nil {
			return nil, fmt.Errorf("waiting for %s: %w", event, err)
		}
		if f.Event == event {
			return f.Data, nil
		}
	}
}

func printDirectory(out io.Writer, leaders map[string]string) {
	if len(leaders) == 0 {
		fmt.Fprintln(out, "no sites currently have a leader")
		return
	}
	sites := make([]string, 0, len(leaders))
	for site := range leaders {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	fmt.Fprintf(out, "%d site(s) led:\n", len(sites))
	for _, site := range sites {
		fmt.Fprintf(out, "  %s\t%s\n", site, leaders[site])
	}
}
