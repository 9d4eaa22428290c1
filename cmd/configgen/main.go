package main

import (
	"flag"

	"github.com/danmuck/scopectl/internal/config"
	"github.com/danmuck/scopectl/internal/logging"
	"github.com/rs/zerolog/log"
)

const defaultPath = "cmd/scopectl/config.toml"

func main() {
	logging.ConfigureRuntime()

	output := flag.String("output", defaultPath, "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", defaultPath, "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.LoadFile(*input)
		if err != nil {
			log.Fatal().Err(err).Msg("config invalid")
		}
		log.Info().
			Str("path", *input).
			Str("browser", cfg.Browser.Addr).
			Int("script_retry", cfg.Debugger.ScriptRetry).
			Msg("config validated")
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal().Err(err).Msg("write config template")
	}
	log.Info().Str("path", *output).Msg("wrote config template")
}
