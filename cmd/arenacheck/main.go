package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/park285/cheese-arena/internal/arenaclient"
)

func main() {
	cmd := &cli.Command{
		Name:  "arenacheck",
		Usage: "smoke-check a running arena over HTTP and websocket",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-url", Value: "http://localhost:8080", Sources: cli.EnvVars("ARENA_BASE_URL")},
			&cli.StringFlag{Name: "ws-url", Usage: "defaults to <base-url>/ws", Sources: cli.EnvVars("ARENA_WS_URL")},
			&cli.StringFlag{Name: "name", Value: "arenacheck", Usage: "display name for dev sign-in"},
			&cli.StringFlag{Name: "token", Usage: "use an existing token instead of dev sign-in", Sources: cli.EnvVars("ARENA_TOKEN")},
			&cli.BoolFlag{Name: "join-queue", Usage: "join the matchmaking queue once connected"},
			&cli.DurationFlag{Name: "watch", Value: 10 * time.Second, Usage: "how long to print websocket events"},
		},
		Action: check,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func check(ctx context.Context, cmd *cli.Command) error {
	base := cmd.String("base-url")
	client := arenaclient.New(base, 8*time.Second)

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Health(hctx); err != nil {
		return fmt.Errorf("/health: %w", err)
	}
	log.Printf("/health ok")

	if tok := cmd.String("token"); tok != "" {
		client.SetToken(tok)
	} else {
		auth, err := client.DevSignIn(hctx, cmd.String("name"))
		if err != nil {
			return fmt.Errorf("dev sign-in: %w", err)
		}
		log.Printf("signed in as %s (%s)", auth.User.DisplayName, auth.User.ID)
	}
	me, err := client.Me(hctx)
	if err != nil {
		return fmt.Errorf("/api/me: %w", err)
	}
	log.Printf("/api/me ok: status=%s games=%d points=%d", me.Status, me.Stats.GamesTotal, me.Stats.Points)

	if w, err := client.DailyWinner(hctx, ""); err != nil {
		log.Printf("daily winner error: %v", err)
	} else if w.Winner != nil {
		log.Printf("daily winner %s: %s with %d points", w.Date, w.Winner.DisplayName, w.Winner.Points)
	} else {
		log.Printf("daily winner %s: nobody yet", w.Date)
	}

	wsURL := cmd.String("ws-url")
	if wsURL == "" {
		if wsURL, err = arenaclient.WSURL(base); err != nil {
			return err
		}
	}
	ws := arenaclient.NewConn(wsURL, client.Token, 3)
	ws.OnStateChange(func(s arenaclient.State) { log.Printf("WS state: %s", s) })
	ws.OnFrame(func(f arenaclient.Frame) { log.Printf("WS %s %s", f.Type, truncate(string(f.Payload), 200)) })

	cctx, ccancel := context.WithTimeout(ctx, 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		return fmt.Errorf("ws connect: %w", err)
	}
	if cmd.Bool("join-queue") {
		if err := ws.Send(cctx, "join-queue", map[string]any{}); err != nil {
			log.Printf("join-queue send error: %v", err)
		}
	}

	select {
	case <-ctx.Done():
	case <-time.After(cmd.Duration("watch")):
	}
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCancel()
	return ws.Close(closeCtx)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
