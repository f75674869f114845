package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/banshee-data/mocap.bridge/internal/device"
	"github.com/banshee-data/mocap.bridge/internal/httputil"
	"github.com/banshee-data/mocap.bridge/internal/monitor"
	"github.com/banshee-data/mocap.bridge/internal/publish"
	"github.com/banshee-data/mocap.bridge/internal/units"
)

const defaultURL = "http://localhost:8090"

var errUsage = errors.New("usage")

func main() {
	flag.Usage = printUsage
	flag.Parse()
	if err := run(context.Background(), flag.Args(), os.Stdout, nil); err != nil {
		if errors.Is(err, errUsage) {
			printUsage()
		} else {
			fmt.Fprintf(os.Stderr, "mocapctl: %v\n", err)
		}
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`mocapctl - control a running mocapd

Usage: mocapctl <command> [--url http://host:8090] [args]

Commands:
  status                 Show devices and output counters
  poses [--units mph]    Show the latest pose of every device
  config                 Show pipeline settings
  config key=value ...   Update pipeline settings (values are JSON)
  identify <serial>      Buzz a tracker so it can be found
  sessions               List recorded sessions

Examples:
  mocapctl config history_capacity=20 max_age_seconds=0.25
  mocapctl config 'origin={"translation":{"X":0,"Y":0,"Z":1},"yaw":1.57}'
  mocapctl identify mocap_left_foot`)
}

// run executes one command. A nil doer uses a real HTTP client.
func run(ctx context.Context, args []string, out io.Writer, doer httputil.Doer) error {
	if len(args) < 1 {
		return errUsage
	}
	command := args[0]

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	baseURL := fs.String("url", defaultURL, "mocapd monitor URL")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	speedUnit := fs.String("units", units.MPS, "Speed units for poses (mps, kmph, mph)")
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	unit, err := units.ParseSpeedUnit(*speedUnit)
	if err != nil {
		return err
	}
	rest := fs.Args()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	c := httputil.NewClient(*baseURL, doer)

	switch command {
	case "status":
		return showStatus(ctx, c, out)
	case "poses":
		return showPoses(ctx, c, out, unit)
	case "config":
		if len(rest) == 0 {
			return showConfig(ctx, c, out)
		}
		return setConfig(ctx, c, out, rest)
	case "identify":
		if len(rest) != 1 {
			return fmt.Errorf("identify takes exactly one serial: %w", errUsage)
		}
		if err := c.Post(ctx, "/api/devices/"+url.PathEscape(rest[0])+"/identify", nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(out, "identify sent to %s\n", rest[0])
		return nil
	case "sessions":
		return showSessions(ctx, c, out)
	case "help":
		printUsage()
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", command, errUsage)
	}
}

func showStatus(ctx context.Context, c *httputil.Client, out io.Writer) error {
	var st monitor.StatusResponse
	if err := c.Get(ctx, "/api/status", &st); err != nil {
		return err
	}
	fmt.Fprintf(out, "mocapd %s  up %.0fs  frames %d\n\n", st.Version, st.UptimeSeconds, st.Frames)
	fmt.Fprintf(out, "%-20s %-3s %-14s %-14s %-7s %-9s %-20s\n", "SERIAL", "IDX", "SEGMENT", "ROLE", "HIST", "HAPTIC", "PREDICT")
	for _, d := range st.Devices {
		idx := "-"
		if d.Active {
			idx = fmt.Sprint(d.Index)
		}
		fmt.Fprintf(out, "%-20s %-3s %-14s %-14s %-7s %-9s %-20s\n",
			d.Serial, idx, d.Segment, d.Role,
			fmt.Sprintf("%d/%d", d.HistoryLen, d.Settings.HistoryCapacity), d.Haptic, d.PredictState)
	}
	if len(st.Outputs) > 0 {
		fmt.Fprintln(out)
		raw, err := json.MarshalIndent(st.Outputs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "outputs: %s\n", raw)
	}
	return nil
}

func showPoses(ctx context.Context, c *httputil.Client, out io.Writer, unit string) error {
	var poses []publish.PoseMessage
	if err := c.Get(ctx, "/api/poses", &poses); err != nil {
		return err
	}
	if len(poses) == 0 {
		fmt.Fprintln(out, "no poses published yet")
		return nil
	}
	for _, p := range poses {
		fmt.Fprintf(out, "%-20s %-20s pos=(%.3f, %.3f, %.3f) vel=(%.3f, %.3f, %.3f) speed=%.2f %s\n",
			p.Serial, p.Status,
			p.Position[0], p.Position[1], p.Position[2],
			p.Velocity[0], p.Velocity[1], p.Velocity[2],
			units.Speed(p.Velocity, unit), unit)
	}
	return nil
}

func printSettings(out io.Writer, s device.Settings) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n", raw)
	return nil
}

func showConfig(ctx context.Context, c *httputil.Client, out io.Writer) error {
	var s device.Settings
	if err := c.Get(ctx, "/api/config", &s); err != nil {
		return err
	}
	return printSettings(out, s)
}

// parseAssignments turns key=value arguments into a JSON object. Values
// are parsed as JSON, falling back to a plain string.
func parseAssignments(args []string) (map[string]json.RawMessage, error) {
	body := make(map[string]json.RawMessage, len(args))
	for _, a := range args {
		key, value, ok := strings.Cut(a, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		if json.Valid([]byte(value)) {
			body[key] = json.RawMessage(value)
			continue
		}
		quoted, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		body[key] = quoted
	}
	return body, nil
}

func setConfig(ctx context.Context, c *httputil.Client, out io.Writer, args []string) error {
	body, err := parseAssignments(args)
	if err != nil {
		return err
	}
	var applied device.Settings
	if err := c.Post(ctx, "/api/config", body, &applied); err != nil {
		return err
	}
	return printSettings(out, applied)
}

func showSessions(ctx context.Context, c *httputil.Client, out io.Writer) error {
	var sessions []struct {
		ID         string         `json:"session_id"`
		Started    time.Time      `json:"started"`
		Ended      *time.Time     `json:"ended"`
		SourceKind string         `json:"source_kind"`
		Drops      map[string]int `json:"drops"`
	}
	if err := c.Get(ctx, "/api/sessions", &sessions); err != nil {
		return err
	}
	fmt.Fprintf(out, "%-36s %-20s %-10s %-8s %s\n", "SESSION", "STARTED", "DURATION", "SOURCE", "DROPS")
	for _, s := range sessions {
		dur := "running"
		if s.Ended != nil {
			dur = s.Ended.Sub(s.Started).Round(time.Second).String()
		}
		drops := 0
		for _, n := range s.Drops {
			drops += n
		}
		fmt.Fprintf(out, "%-36s %-20s %-10s %-8s %d\n",
			s.ID, s.Started.Local().Format("2006-01-02 15:04:05"), dur, s.SourceKind, drops)
	}
	return nil
}
