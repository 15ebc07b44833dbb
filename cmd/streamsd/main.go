// Command streamsd is a small demonstration entrypoint: it brings up a
// data directory, a persisted author identity, and a bbolt-backed
// transport exactly the way the teacher's Server brings up its own
// DataDir/identity/log, then creates a stream, publishes one tagged
// packet, and syncs it back to prove the round trip. It is not a
// network daemon; the engine itself has no listener.
package main

import (
	"context"
	"encoding/pem"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/op/go-logging"

	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/config"
	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/transport/boltbucket"
	"github.com/tribe-health/streams/user"
)

const fileMode = 0600

var log = logging.MustGetLogger("streamsd")

func initLogging(cfg *config.Config) (logging.LeveledBackend, error) {
	var f = os.Stdout
	if cfg.Logging.Disable {
		backend := logging.AddModuleLevel(logging.NewLogBackend(ioutil.Discard, "", 0))
		backend.SetLevel(logging.CRITICAL, "")
		return backend, nil
	}
	if cfg.Logging.File != "" {
		p := cfg.Logging.File
		if !filepath.IsAbs(p) {
			p = filepath.Join(cfg.Engine.DataDir, p)
		}
		file, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileMode)
		if err != nil {
			return nil, fmt.Errorf("streamsd: failed to open log file: %v", err)
		}
		logFmt := logging.MustStringFormatter("%{time:15:04:05.000} %{level:.4s} %{module}: %{message}")
		b := logging.NewBackendFormatter(logging.NewLogBackend(file, "", 0), logFmt)
		backend := logging.AddModuleLevel(b)
		backend.SetLevel(logLevelFromString(cfg.Logging.Level), "")
		return backend, nil
	}
	logFmt := logging.MustStringFormatter("%{time:15:04:05.000} %{level:.4s} %{module}: %{message}")
	b := logging.NewBackendFormatter(logging.NewLogBackend(f, "", 0), logFmt)
	backend := logging.AddModuleLevel(b)
	backend.SetLevel(logLevelFromString(cfg.Logging.Level), "")
	return backend, nil
}

func logLevelFromString(l string) logging.Level {
	switch l {
	case "ERROR":
		return logging.ERROR
	case "WARNING":
		return logging.WARNING
	case "NOTICE":
		return logging.NOTICE
	case "INFO":
		return logging.INFO
	case "DEBUG":
		return logging.DEBUG
	default:
		panic("BUG: invalid log level (post-validation)")
	}
}

func initDataDir(dir string) error {
	const dirMode = os.ModeDir | 0700
	if fi, err := os.Lstat(dir); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("streamsd: failed to stat DataDir: %v", err)
		}
		return os.MkdirAll(dir, dirMode)
	} else if !fi.IsDir() {
		return fmt.Errorf("streamsd: DataDir '%v' is not a directory", dir)
	}
	return nil
}

// loadOrCreateIdentity deserializes a PEM-encoded Ed25519 seed from the
// data directory, generating and persisting a fresh one if none exists.
func loadOrCreateIdentity(dataDir string) (*id.Ed25519Identity, error) {
	const (
		keyFile = "identity.private.pem"
		keyType = "Ed25519 SEED"
	)
	fn := filepath.Join(dataDir, keyFile)

	if buf, err := ioutil.ReadFile(fn); err == nil {
		blk, rest := pem.Decode(buf)
		if blk == nil || len(rest) != 0 {
			return nil, fmt.Errorf("streamsd: malformed identity file %v", fn)
		}
		if blk.Type != keyType {
			return nil, fmt.Errorf("streamsd: invalid PEM type '%v'", blk.Type)
		}
		return id.NewEd25519IdentityFromSeed(blk.Bytes)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	identity, err := id.NewEd25519Identity()
	if err != nil {
		return nil, err
	}
	blk := &pem.Block{Type: keyType, Bytes: identity.Seed()}
	if err := ioutil.WriteFile(fn, pem.EncodeToMemory(blk), fileMode); err != nil {
		return nil, err
	}
	return identity, nil
}

func run(cfgPath string) error {
	cfg, err := config.LoadFile(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := initDataDir(cfg.Engine.DataDir); err != nil {
		return err
	}
	backend, err := initLogging(cfg)
	if err != nil {
		return err
	}
	log.SetBackend(backend)

	identity, err := loadOrCreateIdentity(cfg.Engine.DataDir)
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}
	pub, _ := identity.Identifier().Ed25519PublicKey()
	log.Noticef("author identifier: %x", pub)

	dbPath := filepath.Join(cfg.Engine.DataDir, "transport.bolt")
	tr, err := boltbucket.New(dbPath)
	if err != nil {
		return fmt.Errorf("opening transport: %w", err)
	}
	defer tr.Close()

	u := user.New(identity, tr, log)
	u.SetLean(cfg.Engine.Lean)

	ctx := context.Background()
	topic := address.Topic(cfg.Engine.BaseBranch)

	resp, err := u.CreateStream(ctx, topic)
	if err != nil {
		return fmt.Errorf("creating stream: %w", err)
	}
	log.Noticef("stream created at %s", resp.Address)

	pub2, err := u.SendTaggedPacket(ctx, topic, []byte("hello"), nil)
	if err != nil {
		return fmt.Errorf("sending packet: %w", err)
	}
	log.Noticef("published packet at %s", pub2.Address)

	n, err := u.Sync(ctx)
	if err != nil {
		return fmt.Errorf("syncing: %w", err)
	}
	log.Noticef("sync advanced %d message(s)", n)

	return nil
}

func main() {
	cfgPath := flag.String("config", "streamsd.toml", "path to a streamsd TOML config file")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "streamsd: %v\n", err)
		os.Exit(1)
	}
}
