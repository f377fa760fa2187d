package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"gazemap-go/internal/config"
)

func main() {
	path := pflag.StringP("layout", "l", "", "Surface layout YAML (built-in layout when empty)")
	pflag.Parse()

	layout := config.DefaultLayout()
	if *path != "" {
		var err error
		if layout, err = config.LoadLayout(*path); err != nil {
			slog.Error("load layout", "err", err)
			os.Exit(1)
		}
	}

	registry, err := config.BuildRegistry(layout)
	if err != nil {
		slog.Error("invalid layout", "err", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SURFACE\tSIZE\tMARKER\tCORNERS (TL TR BR BL)")
	for _, s := range registry.Surfaces() {
		for _, id := range s.MarkerIDs() {
			c := s.Markers[id]
			fmt.Fprintf(w, "%s\t%gx%g\t%d\t(%g,%g) (%g,%g) (%g,%g) (%g,%g)\n",
				s.Name, s.Size.Width, s.Size.Height, id,
				c[0].X, c[0].Y, c[1].X, c[1].Y, c[2].X, c[2].Y, c[3].X, c[3].Y)
		}
	}
	if layout.Calibration != nil {
		fmt.Fprintf(w, "\ncalibration\tfx=%g fy=%g cx=%g cy=%g\tdistortion=%v\n",
			layout.Calibration.CameraMatrix[0][0], layout.Calibration.CameraMatrix[1][1],
			layout.Calibration.CameraMatrix[0][2], layout.Calibration.CameraMatrix[1][2],
			layout.Calibration.Distortion)
	}
	if err := w.Flush(); err != nil {
		slog.Error("write", "err", err)
		os.Exit(1)
	}
}
