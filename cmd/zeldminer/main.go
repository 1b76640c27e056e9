// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// zeldminer mines SegWit transactions whose txid carries a configurable
// number of leading zero hex digits, emitting a ready-to-sign PSBT.
//
// The request (inputs, outputs, optional ZELD distribution) is read from
// a JSON file; the result is printed as JSON on stdout.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	flags "github.com/jessevdk/go-flags"

	"github.com/ouziel-slama/zeldhash-miner/addresses"
	"github.com/ouziel-slama/zeldhash-miner/miner"
)

type config struct {
	Network     string `short:"n" long:"network" description:"Bitcoin network" default:"mainnet" choice:"mainnet" choice:"testnet" choice:"signet" choice:"regtest"`
	Request     string `short:"r" long:"request" description:"Path to the JSON mining request" required:"true"`
	FeeRate     uint64 `short:"f" long:"feerate" description:"Fee rate in sats/vByte" default:"2"`
	BatchSize   uint32 `short:"b" long:"batchsize" description:"Default nonce range per request" default:"1000000"`
	Workers     int    `short:"w" long:"workers" description:"CPU worker threads per segment (0 = all cores)"`
	LogFile     string `long:"logfile" description:"Rotating log file path"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}" default:"info"`
	ShowVersion bool   `short:"V" long:"version" description:"Print version and exit"`
}

const version = "0.2.0"

func run() error {
	var cfg config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("zeldminer version %s\n", version)
		return nil
	}

	if err := setLogLevel(cfg.DebugLevel); err != nil {
		return err
	}
	if cfg.LogFile != "" {
		if err := initLogRotator(cfg.LogFile); err != nil {
			return err
		}
	}
	useLoggers()

	network, err := addresses.ParseNetwork(cfg.Network)
	if err != nil {
		return err
	}

	requestBytes, err := os.ReadFile(cfg.Request)
	if err != nil {
		return fmt.Errorf("failed to read request file: %w", err)
	}
	var params miner.Params
	if err := json.Unmarshal(requestBytes, &params); err != nil {
		return fmt.Errorf("failed to parse request file: %w", err)
	}

	m, err := miner.New(miner.Options{
		Network:       network,
		BatchSize:     cfg.BatchSize,
		WorkerThreads: cfg.Workers,
		SatsPerVByte:  cfg.FeeRate,
	})
	if err != nil {
		return err
	}

	// Ctrl-C requests a cooperative stop; the miner returns
	// mining_aborted with the attempt count preserved.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		log.Infof("Interrupt received, stopping miner")
		m.Stop()
	}()

	log.Infof("Mining on %s, target %d leading zeros, batch %d",
		network, params.TargetZeros, cfg.BatchSize)

	result, err := m.MineTransaction(params, func(stats miner.ProgressStats) {
		log.Debugf("Progress: %d hashes, %.0f h/s, last nonce %d",
			stats.HashesProcessed, stats.HashRate, stats.LastNonce)
	}, nil)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
