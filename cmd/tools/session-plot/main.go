// Command session-plot renders the recorded position trace of one tracker
// from a mocapd session database to a PNG.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/banshee-data/mocap.bridge/internal/db"
	"github.com/banshee-data/mocap.bridge/internal/monitor"
	"github.com/banshee-data/mocap.bridge/internal/publish"
	"github.com/banshee-data/mocap.bridge/internal/security"
)

var (
	dbPath  = flag.String("db", "mocap_bridge.db", "Session database")
	session = flag.String("session", "", "Session ID (default: most recent)")
	serial  = flag.String("serial", "", "Tracker serial (default: first recorded)")
	axes    = flag.String("axes", "xyz", "Axes to plot")
	output  = flag.String("o", "", "Output PNG (default: <session>_<serial>.png)")
	limit   = flag.Int("limit", 0, "Maximum poses to plot (0 = all)")
)

func main() {
	flag.Parse()
	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	path, n, err := plotSession(database, *session, *serial, *axes, *output, *limit)
	if err != nil {
		log.Fatalf("session-plot: %v", err)
	}
	fmt.Printf("wrote %d poses to %s\n", n, path)
}

// plotSession resolves defaults, renders the trace and returns the path
// written and the number of poses plotted.
func plotSession(database *db.DB, sessionID, serial, axes, out string, limit int) (string, int, error) {
	if strings.Trim(axes, "xyz") != "" {
		return "", 0, fmt.Errorf("axes must only contain x, y and z, got %q", axes)
	}
	if sessionID == "" {
		sessions, err := database.Sessions(1)
		if err != nil {
			return "", 0, err
		}
		if len(sessions) == 0 {
			return "", 0, errors.New("no recorded sessions")
		}
		sessionID = sessions[0].ID
	}
	if serial == "" {
		serials, err := database.RecordedSerials(sessionID)
		if err != nil {
			return "", 0, err
		}
		if len(serials) == 0 {
			return "", 0, fmt.Errorf("session %s has no recorded poses", sessionID)
		}
		serial = serials[0]
	}

	rows, err := database.Poses(sessionID, serial, limit)
	if err != nil {
		return "", 0, err
	}
	if len(rows) == 0 {
		return "", 0, fmt.Errorf("no poses for %s in session %s", serial, sessionID)
	}
	trace := make([]publish.PoseMessage, len(rows))
	for i, r := range rows {
		trace[i] = publish.PoseMessage{
			Serial:    r.Serial,
			Index:     r.Index,
			Timestamp: r.Timestamp.UnixNano(),
			Status:    r.Status,
			Valid:     r.Valid,
			Position:  [3]float64{r.Position.X, r.Position.Y, r.Position.Z},
			Rotation:  [4]float64{r.Rotation.Real, r.Rotation.Imag, r.Rotation.Jmag, r.Rotation.Kmag},
			Velocity:  [3]float64{r.Velocity.X, r.Velocity.Y, r.Velocity.Z},
		}
	}

	if out == "" {
		out = security.SanitizeFilename(sessionID+"_"+serial) + ".png"
	}
	if err := security.ValidateExportPath(out); err != nil {
		return "", 0, err
	}
	f, err := os.Create(out)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := monitor.RenderTracePlot(f, serial, axes, trace); err != nil {
		f.Close()
		return "", 0, err
	}
	if err := f.Close(); err != nil {
		return "", 0, err
	}
	return out, len(trace), nil
}
