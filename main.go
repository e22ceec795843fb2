package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/alejzeis/rps-arena/client"
	"github.com/alejzeis/rps-arena/common"
	"github.com/alejzeis/rps-arena/config"
	"github.com/alejzeis/rps-arena/game/rps"
	"github.com/alejzeis/rps-arena/record"
	"github.com/alejzeis/rps-arena/server"
)

// devTokenTTL is the lifetime of tokens minted with -token
const devTokenTTL = 24 * time.Hour

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetLevel(log.DebugLevel)

	if err := config.LoadDotEnv(); err != nil {
		log.WithError(err).Warn("Failed to load .env file")
	}

	if len(os.Args) > 1 && os.Args[1] == "-server" {
		log.WithFields(log.Fields{
			"software": common.SoftwareName,
			"version":  common.SoftwareVersion,
			"mode":     "server",
		}).Info("Starting...")

		cfg := loadConfig()
		recorder, err := openRecorder(cfg)
		if err != nil {
			log.WithError(err).WithField("kind", cfg.RecorderKind).Error("Failed to open result recorder.")
			os.Exit(1)
		}

		if err := server.StartControlServer(cfg, rps.Rules{}, recorder); err != nil {
			os.Exit(1)
		}
	} else if len(os.Args) > 1 && os.Args[1] == "-token" {
		if len(os.Args) != 4 {
			fmt.Fprintln(os.Stderr, "Usage: rps-arena -token [USER ID] [NAME]")
			os.Exit(2)
		}
		user, err := uuid.Parse(os.Args[2])
		if err != nil {
			log.WithError(err).WithField("user", os.Args[2]).Error("User ID must be a UUID")
			os.Exit(2)
		}

		cfg := loadConfig()
		token, err := server.IssueToken([]byte(cfg.Secret), user, os.Args[3], devTokenTTL)
		if err != nil {
			log.WithError(err).Error("Failed to sign token")
			os.Exit(1)
		}
		fmt.Println(token)
	} else {
		log.WithFields(log.Fields{
			"software": common.SoftwareName,
			"version":  common.SoftwareVersion,
			"mode":     "client",
		}).Info("Starting...")

		client.RunClient(os.Stdin, os.Stdout)
	}
}

func loadConfig() *config.Config {
	location := config.Path()

	cfg, err := config.Load(location)
	if err != nil {
		log.WithField("config", location).WithError(err).Error("Failed to load configuration file.")
		panic(err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("Unknown log level, keeping debug")
	} else {
		log.SetLevel(level)
	}
	return cfg
}

func openRecorder(cfg *config.Config) (record.Recorder, error) {
	switch cfg.RecorderKind {
	case config.RecorderSQLite:
		return record.OpenSQLite(cfg.RecorderPath)
	case config.RecorderHTTP:
		return record.NewHTTPRecorder(cfg.RecorderURL, cfg.RecorderTimeout), nil
	}
	return record.LogRecorder{}, nil
}
