// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/feebump/broadcast"
	"github.com/btcsuite/feebump/fees"
	"github.com/btcsuite/feebump/internal/log"
	"github.com/btcsuite/feebump/sampleconfig"
	"github.com/btcsuite/feebump/signer"
	"github.com/btcsuite/feebump/strategy"
	"github.com/btcsuite/feebump/txbuilder"
	flags "github.com/jessevdk/go-flags"
	"golang.org/x/crypto/ssh/terminal"
)

const (
	defaultConfigFilename = "feebump.conf"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "feebump.log"
	defaultLogLevel       = "info"
	defaultRPCServer      = "127.0.0.1"
	defaultWallet         = "rbf_demo_wallet"
	defaultStrategy       = "all"
	defaultKeyType        = "p2wpkh"
)

var (
	feebumpHomeDir    = btcutil.AppDataDir("feebump", false)
	defaultConfigFile = filepath.Join(feebumpHomeDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(feebumpHomeDir, defaultLogDirname)
)

// config defines the configuration options for feebump.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	RPCServer   string `short:"s" long:"rpcserver" description:"RPC server of the bitcoind node to connect to"`
	RPCUser     string `short:"u" long:"rpcuser" description:"RPC username"`
	RPCPassword string `short:"P" long:"rpcpass" default-mask:"-" description:"RPC password, prompted for when a username is set without one"`
	Wallet      string `short:"w" long:"wallet" description:"Name of the node wallet watching the demo key"`
	TestNet3    bool   `long:"testnet" description:"Use the test network instead of regtest; the wallet is never funded by mining"`
	Proxy       string `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser   string `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass   string `long:"proxypass" default-mask:"-" description:"Password for proxy server"`

	Strategy       string        `short:"S" long:"strategy" choice:"rbf" choice:"cpfp" choice:"p2a" choice:"all" description:"Acceleration strategy to demonstrate"`
	StuckFeeRate   float64       `long:"stuckfeerate" description:"Fee rate in sat/vB paid by transactions meant to get stuck"`
	TargetFeeRate  float64       `long:"targetfeerate" description:"Fee rate in sat/vB accelerants aim for"`
	PollInterval   time.Duration `long:"pollinterval" description:"Time between two mempool observations"`
	ObserveTimeout time.Duration `long:"observetimeout" description:"Time to wait for a transaction to reach an expected state"`
	ScanDepth      int64         `long:"scandepth" description:"Number of recent blocks searched for confirmed transactions"`
	FundBlocks     int64         `long:"fundblocks" description:"Number of blocks mined to fund the wallet"`
	MinBalance     float64       `long:"minbalance" description:"Balance in BTC below which the wallet is funded before running"`
	KeyType        string        `long:"keytype" choice:"p2wpkh" choice:"p2tr" description:"Output type of the generated demo key"`
	WIF            string        `long:"wif" description:"Use this WIF encoded private key instead of generating one"`

	params  *chaincfg.Params
	keyType signer.KeyType
}

// stuckFeeRate returns the configured stuck fee rate.
func (c *config) stuckFeeRate() fees.SatPerKVByte {
	return satPerVByte(c.StuckFeeRate)
}

// targetFeeRate returns the configured target fee rate.
func (c *config) targetFeeRate() fees.SatPerKVByte {
	return satPerVByte(c.TargetFeeRate)
}

// satPerVByte converts a possibly fractional rate in sat/vB to the nearest
// sat/kvB.
func satPerVByte(rate float64) fees.SatPerKVByte {
	return fees.SatPerKVByte(math.Round(rate * 1000))
}

// strategies returns the strategies selected by the config.
func (c *config) strategies() ([]strategy.Strategy, error) {
	if c.Strategy == "all" {
		return strategy.All(), nil
	}
	kind, err := txbuilder.ParseStrategy(c.Strategy)
	if err != nil {
		return nil, err
	}
	s, err := strategy.New(kind)
	if err != nil {
		return nil, err
	}
	return []strategy.Strategy{s}, nil
}

// normalizeAddress returns addr with the default RPC port of the network
// appended if there is not already a port specified.
func normalizeAddress(addr string, useTestNet3 bool) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		defaultPort := "18443"
		if useTestNet3 {
			defaultPort = "18332"
		}
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(feebumpHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !log.ValidLogLevel(debugLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		log.SetLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := log.SubsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsystems %v"
			return fmt.Errorf(str, subsysID, log.SupportedSubsystems())
		}

		// Validate log level.
		if !log.ValidLogLevel(logLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		log.SetLogLevel(subsysID, logLevel)
	}

	return nil
}

// createDefaultConfigFile writes the sample config to destPath.  The sample
// only holds comments, so it changes no defaults.
func createDefaultConfigFile(destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0700); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte(sampleconfig.FileContents), 0600)
}

// errShowSubsystems is returned by loadConfig when the subsystems were listed
// and the program should exit.
var errShowSubsystems = errors.New("subsystems listed")

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options.  Command line options always take precedence.
func loadConfig(args []string) (*config, error) {
	// Default config.
	cfg := config{
		ConfigFile:     defaultConfigFile,
		LogDir:         defaultLogDir,
		DebugLevel:     defaultLogLevel,
		RPCServer:      defaultRPCServer,
		Wallet:         defaultWallet,
		Strategy:       defaultStrategy,
		StuckFeeRate:   float64(strategy.DefaultStuckFeeRate) / 1000,
		TargetFeeRate:  float64(fees.DefaultTargetFeeRate) / 1000,
		PollInterval:   broadcast.DefaultPollInterval,
		ObserveTimeout: strategy.DefaultObserveTimeout,
		ScanDepth:      broadcast.DefaultScanDepth,
		FundBlocks:     strategy.DefaultFundBlocks,
		MinBalance:     strategy.DefaultMinBalance.ToBTC(),
		KeyType:        defaultKeyType,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors can be ignored
	// here since they will be caught by the final parse below.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.None)
	_, _ = preParser.ParseArgs(args)

	// Create the default config file when it does not exist yet.
	if preCfg.ConfigFile == defaultConfigFile && !preCfg.ShowVersion {
		if _, err := os.Stat(defaultConfigFile); os.IsNotExist(err) {
			err := createDefaultConfigFile(defaultConfigFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating a default "+
					"config file: %v\n", err)
			}
		}
	}

	// Load additional config from file.
	parser := flags.NewParser(&cfg, flags.PassDoubleDash|flags.HelpFlag)
	if !preCfg.ShowVersion {
		err := flags.NewIniParser(parser).ParseFile(
			cleanAndExpandPath(preCfg.ConfigFile),
		)
		if err != nil {
			if _, ok := err.(*os.PathError); !ok {
				return nil, err
			}
		}
	}

	// Parse command line options again to ensure they take precedence.
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if cfg.ShowVersion {
		return &cfg, nil
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", log.SupportedSubsystems())
		return nil, errShowSubsystems
	}

	cfg.params = &chaincfg.RegressionNetParams
	if cfg.TestNet3 {
		cfg.params = &chaincfg.TestNet3Params
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, fmt.Errorf("loadConfig: %w", err)
	}

	if cfg.StuckFeeRate < 0 || cfg.TargetFeeRate <= 0 {
		return nil, fmt.Errorf("loadConfig: fee rates must be positive")
	}
	if cfg.targetFeeRate() <= cfg.stuckFeeRate() {
		return nil, fmt.Errorf("loadConfig: target fee rate %v must "+
			"exceed stuck fee rate %v", cfg.targetFeeRate(),
			cfg.stuckFeeRate())
	}
	if cfg.MinBalance < 0 {
		return nil, fmt.Errorf("loadConfig: negative minimum balance")
	}

	keyType, err := signer.ParseKeyType(cfg.KeyType)
	if err != nil {
		return nil, fmt.Errorf("loadConfig: %w", err)
	}
	cfg.keyType = keyType

	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.RPCServer = normalizeAddress(cfg.RPCServer, cfg.TestNet3)

	return &cfg, nil
}

// promptPassword reads the RPC password from the terminal when a username
// was given without one.
func (c *config) promptPassword() error {
	if c.RPCUser == "" || c.RPCPassword != "" {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !terminal.IsTerminal(fd) {
		return nil
	}

	fmt.Fprintf(os.Stderr, "RPC password for %s@%s: ", c.RPCUser,
		c.RPCServer)
	pass, err := terminal.ReadPassword(fd)
	fmt.Fprint(os.Stderr, "\n")
	if err != nil {
		return fmt.Errorf("unable to read password: %w", err)
	}
	c.RPCPassword = string(pass)
	return nil
}
