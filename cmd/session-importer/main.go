package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"tg-search-bot/internal/adapters/mtproto"
	"tg-search-bot/internal/infra/config"
)

// Импортирует MTProto-сессию (gotd JSON, Telethon string или JSON) в файл,
// из которого её читает cmd/syncer.
func main() {
	var filePath string
	flag.StringVar(&filePath, "file", "", "Path to MTProto session file (gotd JSON or Telethon export)")
	flag.Parse()

	if filePath == "" {
		log.Fatal().Msg("session-importer: path to session file is required (-file)")
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("session-importer: failed to read session file")
	}
	normalized, converted, err := mtproto.NormalizeSessionBytes(raw)
	if err != nil {
		log.Fatal().Err(err).Msg("session-importer: unsupported MTProto session format")
	}

	cfg := config.Load()
	target := cfg.MTProto.SessionFile

	tmp, err := os.CreateTemp(filepath.Dir(target), "session-*.tmp")
	if err != nil {
		log.Fatal().Err(err).Msg("session-importer: failed to create temp file")
	}
	if _, err := tmp.Write(normalized); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		log.Fatal().Err(err).Msg("session-importer: failed to write session")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		log.Fatal().Err(err).Msg("session-importer: failed to close temp file")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		log.Fatal().Err(err).Msg("session-importer: failed to move session into place")
	}

	if converted {
		fmt.Println("Session was converted to gotd JSON format before storing")
	}
	fmt.Printf("Stored MTProto session at %s (%d bytes)\n", target, len(normalized))
}
