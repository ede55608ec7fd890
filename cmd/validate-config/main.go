package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/T3-Labs/edge-av1/pkg/config"
)

func main() {
	configFile := flag.String("config", "config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration %s: %v\n", *configFile, err)
		os.Exit(1)
	}

	monochrome, ssx, ssy, _ := cfg.Stream.Format()
	fmt.Printf("# %s: ok (monochrome=%v subsampling=%d,%d)\n", *configFile, monochrome, ssx, ssy)

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
	_ = enc.Close()
}
