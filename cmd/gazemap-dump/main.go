package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"gazemap-go/internal/output"
	"gazemap-go/internal/types"
)

type record struct {
	Index      int         `json:"index"`
	RecordedAt time.Time   `json:"recorded_at"`
	Frame      types.Frame `json:"frame"`
	DataBytes  int         `json:"scene_data_bytes"`
}

func main() {
	var (
		path   = pflag.StringP("path", "p", "", "Path to a gazemap recording")
		limit  = pflag.IntP("limit", "n", 0, "Number of records to dump (0 for all)")
		offset = pflag.Int("offset", 0, "Skip this many records first")
	)
	pflag.Parse()

	if *path == "" {
		slog.Error("path is required")
		os.Exit(2)
	}

	reader, err := output.OpenRecording(*path)
	if err != nil {
		slog.Error("open recording", "err", err)
		os.Exit(1)
	}
	defer reader.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	dumped := 0
	for i := 0; ; i++ {
		if *limit > 0 && dumped >= *limit {
			return
		}
		frame, recordedAt, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			slog.Error("read record", "index", i, "err", err)
			os.Exit(1)
		}
		if i < *offset {
			continue
		}
		if err := enc.Encode(record{Index: i, RecordedAt: recordedAt, Frame: frame, DataBytes: len(frame.Scene.Data)}); err != nil {
			slog.Error("encode record", "index", i, "err", err)
			os.Exit(1)
		}
		dumped++
	}
}
