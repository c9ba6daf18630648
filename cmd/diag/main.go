// Command diag exercises the prediction pipeline offline: it parses a TLE
// file, predicts upcoming passes over an observer, and for a chosen
// satellite samples a tracking window and prints the trajectory wire
// string. With -upload it pushes the string to a tracker for a dry run
// without the full service.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kilodelta8/StarTrack/internal/device"
	"github.com/kilodelta8/StarTrack/internal/passes"
	"github.com/kilodelta8/StarTrack/internal/propagation"
	"github.com/kilodelta8/StarTrack/internal/tle"
	"github.com/kilodelta8/StarTrack/internal/trajectory"
	"github.com/kilodelta8/StarTrack/internal/transform"
)

func main() {
	var (
		tleFile   = flag.String("tle", "", "path to a TLE catalog file (required)")
		lat       = flag.Float64("lat", 39.86, "observer latitude in degrees")
		lon       = flag.Float64("lon", -84.38, "observer longitude in degrees")
		alt       = flag.Float64("alt", 300, "observer altitude in meters")
		catalog   = flag.Int("catalog", 0, "NORAD catalog number to sample (0 predicts passes for every satellite)")
		start     = flag.String("start", "", "prediction start in RFC3339 (default now)")
		horizon   = flag.Float64("horizon", 24, "pass prediction horizon in hours")
		minEl     = flag.Float64("min-el", 10, "elevation cutoff in degrees")
		model     = flag.String("model", propagation.ModelSGP4, "propagation model (sgp4 or kepler)")
		window    = flag.Duration("window", 10*time.Minute, "trajectory window length")
		step      = flag.Duration("step", 5*time.Second, "trajectory sample step")
		precision = flag.Int("precision", 2, "wire format fractional digits")
		upload    = flag.String("upload", "", "tracker base URL; when set the trajectory is uploaded")
	)
	flag.Parse()

	if *tleFile == "" {
		fmt.Fprintln(os.Stderr, "usage: diag -tle FILE [-catalog NORAD] [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	data, err := os.ReadFile(*tleFile)
	if err != nil {
		fmt.Println("ERROR reading TLE file:", err)
		os.Exit(1)
	}

	sats, err := tle.ParseCatalog(bytes.NewReader(data), logger)
	if err != nil {
		fmt.Println("ERROR parsing TLE:", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d TLE entries\n", len(sats))
	if len(sats) > 0 {
		fmt.Printf("First entry: %s (NORAD %d) epoch %v\n", sats[0].Name, sats[0].CatalogNumber, sats[0].Epoch)
	}

	if err := transform.ValidateGeodetic(*lat, *lon, *alt); err != nil {
		fmt.Println("ERROR invalid observer:", err)
		os.Exit(1)
	}
	obs := transform.NewObserverPosition(*lat, *lon, *alt)

	startTime := time.Now().UTC()
	if *start != "" {
		startTime, err = time.Parse(time.RFC3339, *start)
		if err != nil {
			fmt.Println("ERROR parsing start time:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("Prediction start: %v\n", startTime.Format(time.RFC3339))

	subset := sats
	if *catalog > 0 {
		subset = nil
		for i := range sats {
			if sats[i].CatalogNumber == *catalog {
				subset = sats[i : i+1]
				break
			}
		}
		if subset == nil {
			fmt.Printf("ERROR NORAD %d not found in %s\n", *catalog, *tleFile)
			os.Exit(1)
		}
	}

	req := passes.Request{
		Observer:     obs,
		Satellites:   subset,
		Model:        *model,
		Start:        startTime,
		HorizonHours: *horizon,
		MinElevation: *minEl,
		MaxPasses:    10,
	}

	results := passes.Predict(context.Background(), req)

	totalPasses := 0
	var firstPass *passes.PassEvent
	for _, sat := range results {
		if sat.Error != "" {
			fmt.Printf("  NORAD %d: ERROR %s\n", sat.CatalogNumber, sat.Error)
			continue
		}
		fmt.Printf("  NORAD %d: %d passes\n", sat.CatalogNumber, len(sat.Passes))
		totalPasses += len(sat.Passes)
		for j, p := range sat.Passes {
			fmt.Printf("    pass %d: start=%v maxEl=%.1f° dur=%.0fs\n",
				j, p.StartTime.Format(time.RFC3339), p.MaxElevation, p.DurationSeconds)
			if firstPass == nil {
				firstPass = &sat.Passes[j]
			}
		}
	}
	fmt.Printf("\nTotal passes found: %d\n", totalPasses)

	if *catalog == 0 {
		return
	}

	// Sample the tracking window. Anchor on the first predicted pass so the
	// wire string actually contains visible samples.
	winStart := startTime
	if firstPass != nil {
		winStart = firstPass.StartTime
	}

	prop, err := propagation.New(*model, &subset[0])
	if err != nil {
		fmt.Println("ERROR building propagator:", err)
		os.Exit(1)
	}
	tr, err := passes.Sample(prop, obs, passes.Window{
		Start:    winStart,
		Step:     *step,
		Duration: *window,
	}, *minEl)
	if err != nil {
		fmt.Println("ERROR sampling trajectory:", err)
		os.Exit(1)
	}
	if len(tr) == 0 {
		fmt.Printf("No samples above %.1f° in the %v window starting %v\n",
			*minEl, *window, winStart.Format(time.RFC3339))
		return
	}

	wire := trajectory.Codec{Precision: *precision}.Encode(tr)
	fmt.Printf("\nTrajectory: %d samples over %v starting %v\n",
		len(tr), *window, winStart.Format(time.RFC3339))
	fmt.Println(wire)

	if *upload == "" {
		return
	}

	client := device.NewClient(*upload, 5*time.Second, 2*time.Second)
	ack, err := client.Upload(context.Background(), wire)
	if err != nil {
		fmt.Println("ERROR uploading trajectory:", err)
		os.Exit(1)
	}
	fmt.Printf("Uploaded to %s: HTTP %d %s\n", client.BaseURL(), ack.StatusCode, ack.Body)
}
