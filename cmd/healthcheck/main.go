package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/park285/chess-room-server/internal/apiclient"
	"github.com/park285/chess-room-server/pkg/chessdto"
)

func main() {
	baseURL := flag.String("url", envOr("CHESS_BASE_URL", "http://localhost:8080"), "server base url")
	checkWS := flag.Bool("ws", false, "also create a room and join it over the websocket")
	timeout := flag.Duration("timeout", 15*time.Second, "overall deadline")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := apiclient.NewClient(*baseURL, apiclient.WithTimeout(5*time.Second))

	var health chessdto.HealthResponse
	err := retry.Do(
		func() error {
			var err error
			health, err = client.Health(ctx)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
		retry.OnRetry(func(n uint, err error) { log.Printf("/api/health attempt %d: %v", n+1, err) }),
		retry.LastErrorOnly(true),
	)
	if err != nil || !health.OK {
		log.Fatalf("/api/health failed: %v", err)
	}
	log.Printf("/api/health ok: engine=%s", health.Engine)

	bots, err := client.Bots(ctx)
	if err != nil {
		log.Fatalf("/api/bots failed: %v", err)
	}
	if len(bots) == 0 {
		log.Fatal("/api/bots returned an empty table")
	}
	log.Printf("/api/bots ok: %d levels (%s..%s)", len(bots), bots[0].ID, bots[len(bots)-1].ID)

	if !*checkWS {
		return
	}

	roomID, err := client.CreateRoom(ctx, "pvp", "")
	if err != nil {
		log.Fatalf("create room failed: %v", err)
	}
	sock, err := apiclient.Dial(ctx, apiclient.WebSocketURL(*baseURL), nil)
	if err != nil {
		log.Fatalf("ws connect error: %v", err)
	}
	defer sock.Close(context.Background())

	if err := sock.Join(ctx, roomID); err != nil {
		log.Fatalf("ws join error: %v", err)
	}
	env, err := sock.Expect(ctx, chessdto.EventState)
	if err != nil {
		log.Fatalf("ws state not received: %v", err)
	}
	var st chessdto.RoomState
	if err := json.Unmarshal(env.Data, &st); err != nil {
		log.Fatalf("ws state decode: %v", err)
	}
	log.Printf("ws ok: room=%s fen=%q", st.ID, st.FEN)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
