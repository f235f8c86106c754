package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type EventsOptions struct {
	*RootOptions
	TCPAddr   string
	WSURL     string
	Language  string
	Pretty    bool
	Reconnect bool
}

func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow catalog sync and migration events",
		Long: `Subscribe to the api-server event feed, over the TCP line feed
(default) or the websocket endpoint with --ws.

--lang follows a single catalog; without it every language is shown.

Examples:
  catalogctl events --tcp 127.0.0.1:7070
  catalogctl events --ws ws://localhost:8080/ws --lang en`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			for {
				var err error
				if opts.WSURL != "" {
					err = followWebSocket(ctx, opts.WSURL, opts.Language, w, opts.Pretty)
				} else {
					err = followTCP(ctx, opts.TCPAddr, opts.Language, w, opts.Pretty)
				}
				if !opts.Reconnect || ctx.Err() != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "disconnected: %v\n", err)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(time.Second):
				}
			}
		},
	}

	cmd.Flags().StringVar(&opts.TCPAddr, "tcp", "127.0.0.1:7070", "TCP event feed address")
	cmd.Flags().StringVar(&opts.WSURL, "ws", "", "websocket URL (overrides --tcp)")
	cmd.Flags().StringVar(&opts.Language, "lang", "", "only show events for this catalog language")
	cmd.Flags().BoolVar(&opts.Pretty, "pretty", false, "indent JSON events")
	cmd.Flags().BoolVar(&opts.Reconnect, "reconnect", true, "reconnect after a disconnect")
	return cmd
}

func followTCP(ctx context.Context, addr, language string, w io.Writer, pretty bool) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if language != "" {
		if _, err := fmt.Fprintf(conn, "SUBSCRIBE %s\n", language); err != nil {
			return err
		}
	}

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		printEvent(w, sc.Bytes(), pretty)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

func followWebSocket(ctx context.Context, rawURL, language string, w io.Writer, pretty bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}
	if language != "" {
		q := u.Query()
		q.Set("language", language)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		printEvent(w, msg, pretty)
	}
}

// printEvent writes one event per line; non-JSON lines pass through.
func printEvent(w io.Writer, line []byte, pretty bool) {
	if !pretty {
		fmt.Fprintln(w, string(line))
		return
	}
	var obj map[string]any
	if err := json.Unmarshal(line, &obj); err != nil {
		fmt.Fprintln(w, string(line))
		return
	}
	b, _ := json.MarshalIndent(obj, "", "  ")
	fmt.Fprintln(w, string(b))
}
