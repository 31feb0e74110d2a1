package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/yarkm13/ftpextract/config"
	"github.com/yarkm13/ftpextract/extract"
	"github.com/yarkm13/ftpextract/logging"
	"github.com/yarkm13/ftpextract/remote"
)

const (
	actionRun            = "run"
	actionTestConnection = "testConnection"
	actionListFiles      = "list_files"
	actionLoadCSVColumns = "load_csv_columns"
)

var configFlag = flag.String("config", "data/config.json", "path to the JSON parameter file")
var dataDirFlag = flag.String("data-dir", "data", "data directory holding in/ and out/")
var actionFlag = flag.String("action", actionRun, "action to execute: run, testConnection, list_files, load_csv_columns")
var askPassFlag = flag.Bool("ask-pass", false, "prompt for the connection password")
var askPassphraseFlag = flag.Bool("ask-passphrase", false, "prompt for the private key passphrase")
var debugFlag = flag.Bool("debug", false, "enable debug logging")
var logFormatFlag = flag.String("log-format", "json", "log encoding: json or console")

func main() {
	flag.Parse()
	os.Exit(run())
}

// exitCode maps err to 1 for user errors and 2 otherwise.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case extract.IsUserError(err), errors.Is(err, remote.ErrConfig):
		return 1
	default:
		return 2
	}
}

func run() int {
	log, err := logging.New(logging.Config{Level: "info", Format: *logFormatFlag})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return 1
	}
	if *debugFlag || cfg.Debug {
		if log, err = logging.New(logging.Config{Level: "debug", Format: *logFormatFlag}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
			return 2
		}
	}

	if err := promptSecrets(cfg); err != nil {
		log.Error("failed to read secret", zap.Error(err))
		return 1
	}

	client, err := remote.New(cfg.Params(), remote.WithLogger(log))
	if err != nil {
		log.Error("invalid connection parameters", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, log)

	e := extract.New(client, cfg, *dataDirFlag, log)
	if err := execute(ctx, e, *actionFlag); err != nil {
		log.Error("action failed", zap.String("action", *actionFlag), zap.Error(err))
		return exitCode(err)
	}
	return 0
}

func promptSecrets(cfg *config.Config) error {
	var err error
	if *askPassFlag {
		if cfg.Connection.Password, err = askSecret("Enter password: "); err != nil {
			return err
		}
	}
	if *askPassphraseFlag {
		if cfg.Connection.Passphrase, err = askSecret("Enter passphrase: "); err != nil {
			return err
		}
	}
	return nil
}

// execute runs action and prints sync action results as JSON on stdout.
func execute(ctx context.Context, e *extract.Extractor, action string) error {
	var out any
	switch action {
	case actionRun:
		res, err := e.Run(ctx)
		if err != nil {
			return err
		}
		logging.FromContext(ctx).Info("run finished",
			zap.Strings("files", res.Files),
			zap.String("table", res.Table),
		)
		return nil
	case actionTestConnection:
		if err := e.TestConnection(ctx); err != nil {
			return err
		}
		out = map[string]string{"status": "success", "message": "Connection successful"}
	case actionListFiles:
		files, err := e.ListAllFiles(ctx)
		if err != nil {
			return err
		}
		out = extract.FileElements(files)
	case actionLoadCSVColumns:
		cols, err := e.LoadCSVColumns(ctx)
		if err != nil {
			return err
		}
		out = extract.ColumnElements(cols)
	default:
		return &extract.UserError{Msg: fmt.Sprintf("unknown action %q", action)}
	}
	return json.NewEncoder(os.Stdout).Encode(out)
}
