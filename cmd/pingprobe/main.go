// Command pingprobe measures round-trip latency through a running relay's
// ping bridge. It connects to both ping endpoints, plays the robot on one and
// the controller on the other, and prints a summary.
//
// Each round the robot side sends "ping"; the controller side answers "pong";
// the robot side then echoes "pong" back so the hub's robot-ping loop sees a
// full ping/pong pair and records its own RTT as well.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	relayws "github.com/wricardo/teleop-relay/transport/websocket"
)

const readWait = 5 * time.Second

// Stats summarizes a probe run.
type Stats struct {
	Count  int
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	Median time.Duration
}

func main() {
	cmd := &cli.Command{
		Name:  "pingprobe",
		Usage: "measure RTT through the relay's ping bridge",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "hub", Value: "ws://localhost:5000", Usage: "relay base URL", Sources: cli.EnvVars("RELAY_WS_URL")},
			&cli.IntFlag{Name: "count", Value: 10, Usage: "number of rounds"},
			&cli.DurationFlag{Name: "interval", Value: time.Second, Usage: "time between rounds"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			samples, err := run(ctx, cmd.String("hub"), int(cmd.Int("count")), cmd.Duration("interval"))
			if err != nil {
				return err
			}
			fmt.Print(formatStats(summarize(samples)))
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "pingprobe: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, hubURL string, count int, interval time.Duration) ([]time.Duration, error) {
	base := strings.TrimRight(hubURL, "/")

	controller, _, err := websocket.DefaultDialer.DialContext(ctx, base+"/oculus/ping", nil)
	if err != nil {
		return nil, fmt.Errorf("dialing controller ping endpoint: %w", err)
	}
	defer controller.Close()

	robot, _, err := websocket.DefaultDialer.DialContext(ctx, base+"/robot/ping", nil)
	if err != nil {
		return nil, fmt.Errorf("dialing robot ping endpoint: %w", err)
	}
	defer robot.Close()

	go answer(controller)
	return probe(ctx, robot, count, rate.NewLimiter(rate.Every(interval), 1))
}

// answer replies "pong" to every "ping" until the connection fails.
func answer(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if relayws.Token(payload) == relayws.TokenPing {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(relayws.TokenPong)); err != nil {
				return
			}
		}
	}
}

// probe runs count ping rounds from conn, paced by limiter.
func probe(ctx context.Context, conn *websocket.Conn, count int, limiter *rate.Limiter) ([]time.Duration, error) {
	timer := relayws.NewPingTimer()
	samples := make([]time.Duration, 0, count)

	for i := 0; i < count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return samples, err
		}

		ping := []byte(relayws.TokenPing)
		timer.Observe(ping)
		if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
			return samples, fmt.Errorf("sending ping: %w", err)
		}

		rtt, err := awaitPong(conn, timer)
		if err != nil {
			return samples, err
		}
		samples = append(samples, rtt)

		// Close the pair on the hub's side too.
		if err := conn.WriteMessage(websocket.TextMessage, []byte(relayws.TokenPong)); err != nil {
			return samples, fmt.Errorf("echoing pong: %w", err)
		}
	}
	return samples, nil
}

func awaitPong(conn *websocket.Conn, timer *relayws.PingTimer) (time.Duration, error) {
	conn.SetReadDeadline(time.Now().Add(readWait))
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("waiting for pong: %w", err)
		}
		if _, rtt, ok := timer.Observe(payload); ok {
			return rtt, nil
		}
	}
}

func summarize(samples []time.Duration) Stats {
	if len(samples) == 0 {
		return Stats{}
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, s := range sorted {
		total += s
	}
	return Stats{
		Count:  len(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   total / time.Duration(len(sorted)),
		Median: sorted[len(sorted)/2],
	}
}

func formatStats(s Stats) string {
	if s.Count == 0 {
		return "no samples\n"
	}
	return fmt.Sprintf("rounds=%d min=%s median=%s mean=%s max=%s\n",
		s.Count, s.Min, s.Median, s.Mean, s.Max)
}
