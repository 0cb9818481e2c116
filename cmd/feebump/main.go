// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/feebump/broadcast"
	"github.com/btcsuite/feebump/fees"
	"github.com/btcsuite/feebump/internal/log"
	"github.com/btcsuite/feebump/internal/version"
	"github.com/btcsuite/feebump/node"
	"github.com/btcsuite/feebump/signer"
	"github.com/btcsuite/feebump/strategy"
	flags "github.com/jessevdk/go-flags"
)

var fbmpLog = log.FbmpLog

// demoKey returns the key funding and receiving every transaction: the
// configured WIF or a fresh key.
func demoKey(cfg *config, ring *signer.KeyRing) (*signer.Key, error) {
	if cfg.WIF != "" {
		return ring.ImportWIF(cfg.WIF, cfg.keyType)
	}
	return ring.Generate(cfg.keyType)
}

// feebumpMain is the real main function for feebump.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is called.
func feebumpMain(cfg *config) error {
	if err := log.InitLogRotator(filepath.Join(cfg.LogDir,
		defaultLogFilename)); err != nil {

		return err
	}
	defer log.LogRotator.Close()

	fbmpLog.Infof("Version %s", version.String())

	ctx, cancel := withInterrupt(context.Background())
	defer cancel()

	if err := cfg.promptPassword(); err != nil {
		return err
	}

	bitcoind, err := node.NewBitcoind(&node.Config{
		Host:      cfg.RPCServer,
		User:      cfg.RPCUser,
		Pass:      cfg.RPCPassword,
		Wallet:    cfg.Wallet,
		Params:    cfg.params,
		Proxy:     cfg.Proxy,
		ProxyUser: cfg.ProxyUser,
		ProxyPass: cfg.ProxyPass,
	})
	if err != nil {
		return err
	}
	defer bitcoind.Shutdown()

	ring := signer.NewKeyRing(cfg.params)
	key, err := demoKey(cfg, ring)
	if err != nil {
		return err
	}
	fbmpLog.Infof("Using %v demo key %v", key.Type, key.Address)

	// Mining is only possible on regtest.
	var funder strategy.Funder
	if !cfg.TestNet3 {
		funder = &strategy.MiningFunder{
			Node:   bitcoind,
			Blocks: cfg.FundBlocks,
		}
	}

	minBalance, err := btcutil.NewAmount(cfg.MinBalance)
	if err != nil {
		return err
	}
	err = strategy.Bootstrap(ctx, bitcoind, funder, key.Address, minBalance)
	if err != nil {
		return err
	}

	policy, err := fees.PolicyFromNode(ctx, bitcoind, cfg.targetFeeRate())
	if err != nil {
		return err
	}

	strategies, err := cfg.strategies()
	if err != nil {
		return err
	}

	env := &strategy.Env{
		Node:           bitcoind,
		Keys:           ring,
		Key:            key,
		Calculator:     fees.NewCalculator(policy),
		Broadcaster:    broadcast.NewBroadcaster(bitcoind),
		Monitor:        broadcast.NewMonitor(bitcoind, cfg.PollInterval, cfg.ScanDepth),
		StuckFeeRate:   cfg.stuckFeeRate(),
		ObserveTimeout: cfg.ObserveTimeout,
	}
	reports := strategy.NewRunner(env, funder).RunAll(ctx, strategies...)

	var failed int
	for _, report := range reports {
		fmt.Println(report)
		if !report.Succeeded() {
			failed++
		}
	}
	if skipped := len(strategies) - len(reports); skipped > 0 {
		fmt.Printf("%d strategies skipped\n", skipped)
		failed += skipped
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d strategies failed", failed,
			len(strategies))
	}
	return nil
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		if !errors.Is(err, errShowSubsystems) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	if cfg.ShowVersion {
		appName := filepath.Base(os.Args[0])
		fmt.Println(version.Full(appName))
		os.Exit(0)
	}

	if err := feebumpMain(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
