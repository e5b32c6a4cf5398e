// manifest-builder scans <PUBLIC_DIR>/assets/instructions and writes the
// library manifest next to it. Legacy .doc files are converted with
// LibreOffice when it is installed. With BUILDER_WATCH=true it keeps
// running and rebuilds on changes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/docshelf/docshelf/internal/builder"
	"github.com/docshelf/docshelf/internal/config"
	"github.com/docshelf/docshelf/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	// stdout carries the summary line only.
	if err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: "stderr",
	}); err != nil {
		fmt.Fprintln(os.Stderr, "logging init error:", err)
		os.Exit(1)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := builder.New(builder.Config{
		AssetsDir: cfg.AssetsDir(),
		Converter: builder.NewSofficeConverter(cfg.SofficePath, cfg.ConvertTimeout),
	})

	res, err := b.Build(ctx)
	if err != nil {
		logging.Fatal("manifest build failed", zap.Error(err))
	}
	printSummary(res)

	if !cfg.BuilderWatch {
		return
	}

	err = b.Watch(ctx, cfg.WatchDebounce, func(res builder.Result, err error) {
		if err != nil {
			logging.Error("manifest rebuild failed", zap.Error(err))
			return
		}
		printSummary(res)
	})
	if err != nil {
		logging.Fatal("watch failed", zap.Error(err))
	}
}

func printSummary(res builder.Result) {
	out := res.Output
	if wd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(wd, res.Output); err == nil {
			out = rel
		}
	}
	fmt.Printf("%s manifest generated (%d nodes) -> %s\n", color.GreenString("✔"), res.Count, filepath.ToSlash(out))
}
