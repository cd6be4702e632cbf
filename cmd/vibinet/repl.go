package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/studiovibi/vibinet/internal/protocol"
)

var replConnect string

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Raw protocol REPL: /post, /load, /watch, /unwatch against a broker",
	RunE:  runRepl,
}

func init() {
	replCmd.Flags().StringVar(&replConnect, "connect", "ws://localhost:7777/ws", "broker websocket URL")
}

// runRepl talks the §6 wire protocol directly, one envelope per line typed,
// printing every info_time/info_post the broker sends back. It exists
// alongside the Engine-driven play command as a debugging tool: no clock,
// no timeline, no reconciliation — just the raw contract.
func runRepl(cmd *cobra.Command, args []string) error {
	conn, _, err := websocket.DefaultDialer.Dial(replConnect, nil)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer conn.Close()

	go replPrintIncoming(conn)

	fmt.Fprintln(os.Stderr, "connected. commands: /post <room> <json>, /load <room> <from>, /watch <room>, /unwatch <room>, /ping")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		e, err := replParseCommand(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		data, err := protocol.Marshal(e)
		if err != nil {
			fmt.Fprintln(os.Stderr, "encode error:", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	return scanner.Err()
}

// replParseCommand turns one typed line into the envelope §6 assigns it.
func replParseCommand(line string) (protocol.Envelope, error) {
	fields := strings.SplitN(line, " ", 3)
	switch fields[0] {
	case "/post":
		if len(fields) < 3 {
			return protocol.Envelope{}, fmt.Errorf("usage: /post <room> <json>")
		}
		if !json.Valid([]byte(fields[2])) {
			return protocol.Envelope{}, fmt.Errorf("not valid json: %s", fields[2])
		}
		return protocol.Envelope{
			Kind:       protocol.KindPost,
			Room:       fields[1],
			ClientTime: time.Now().UnixMilli(),
			Data:       []byte(fields[2]),
		}, nil

	case "/load":
		if len(fields) < 3 {
			return protocol.Envelope{}, fmt.Errorf("usage: /load <room> <from>")
		}
		from, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return protocol.Envelope{}, fmt.Errorf("bad index %q: %w", fields[2], err)
		}
		return protocol.Envelope{Kind: protocol.KindLoad, Room: fields[1], From: from}, nil

	case "/watch":
		if len(fields) < 2 {
			return protocol.Envelope{}, fmt.Errorf("usage: /watch <room>")
		}
		return protocol.Envelope{Kind: protocol.KindWatch, Room: fields[1]}, nil

	case "/unwatch":
		if len(fields) < 2 {
			return protocol.Envelope{}, fmt.Errorf("usage: /unwatch <room>")
		}
		return protocol.Envelope{Kind: protocol.KindUnwatch, Room: fields[1]}, nil

	case "/ping":
		return protocol.Envelope{Kind: protocol.KindGetTime, Time: time.Now().UnixMilli()}, nil

	default:
		return protocol.Envelope{}, fmt.Errorf("unknown command %q", fields[0])
	}
}

func replPrintIncoming(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Fprintln(os.Stderr, "connection closed:", err)
			return
		}
		e, err := protocol.Unmarshal(data)
		if err != nil {
			fmt.Fprintln(os.Stderr, "malformed message:", err)
			continue
		}
		fmt.Println(replFormat(e))
	}
}

func replFormat(e protocol.Envelope) string {
	switch e.Kind {
	case protocol.KindInfoTime:
		return fmt.Sprintf("info_time time=%d server_time=%d", e.Time, e.ServerTime)
	case protocol.KindInfoPost:
		return fmt.Sprintf("info_post room=%s index=%d server_time=%d client_time=%d name=%s data=%s",
			e.Room, e.Index, e.ServerTime, e.ClientTime, e.Name, string(e.Data))
	default:
		return fmt.Sprintf("%s %+v", e.Kind, e)
	}
}
