// Command hashdb-pipeline runs a scenario file against a database directory,
// reporting each stage as it passes or fails.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/K-rangeR/hashdb/core"
	"github.com/K-rangeR/hashdb/pipeline"
)

func main() {
	dir := flag.String("dir", "hashdb-data", "data directory")
	scenarioPath := flag.String("scenario", "", "scenario file to run")
	maxSegSize := flag.Int64("max-seg-size", core.DefaultMaxSegmentSize,
		"segment size ceiling in bytes")
	flag.Parse()

	if *scenarioPath == "" {
		fmt.Fprintf(os.Stderr, "usage: hashdb-pipeline -scenario <file> [-dir <dir>] [-max-seg-size <n>]\n")
		os.Exit(1)
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() // nolint:errcheck

	f, err := os.Open(*scenarioPath)
	if err != nil {
		log.Fatal("open scenario", zap.Error(err))
	}
	defer f.Close()

	stages, err := pipeline.ParseScenario(f)
	if err != nil {
		log.Fatal("parse scenario", zap.Error(err))
	}

	env, err := pipeline.OpenEnv(*dir, core.WithMaxSegmentSize(*maxSegSize))
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer env.Close() // nolint:errcheck

	if err := pipeline.New(log, stages...).Run(env); err != nil {
		log.Fatal("pipeline failed", zap.Error(err))
	}
}
