package main

import (
	"io"
	"time"

	"secwaf/config"
	"secwaf/hyperscan"
	"secwaf/logging"
	"secwaf/patternmatching"
	"secwaf/secrule/engine"
	re "secwaf/secrule/ruleevaluation"
	"secwaf/secrule/ruleparsing"
	"secwaf/waf"

	"github.com/rs/zerolog"
)

func newLogger(cfg *config.Main, out io.Writer) zerolog.Logger {
	loglevel, _ := cfg.LogLevel()
	return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).Level(loglevel).With().Timestamp().Caller().Logger()
}

// newMatchers wires the pattern matching backend of the config.
func newMatchers(cfg *config.Main, logger zerolog.Logger) (m re.Matchers, err error) {
	goFactory := patternmatching.NewFactory()
	m.Factory = goFactory

	if cfg.Matcher.Backend == config.BackendHyperscan {
		var dbCache hyperscan.DbCache
		if cfg.Matcher.CacheDir != "" {
			dbCache = hyperscan.NewDbCache(logger, hyperscan.NewCacheFileSystem(cfg.ResolvedCacheDir()))
		}
		m.Factory = hyperscan.NewFactory(logger, goFactory, dbCache)
	}

	// Patterns only known at evaluation time are not worth a Hyperscan database.
	m.Runtime, err = patternmatching.NewCache(goFactory, cfg.Matcher.RuntimeCacheSize)
	return
}

func newEngine(cfg *config.Main, logger zerolog.Logger) (e waf.SecRuleEngine, err error) {
	m, err := newMatchers(cfg, logger)
	if err != nil {
		return
	}

	ef := engine.NewEngineFactory(logger, ruleparsing.NewRuleParser(), ruleparsing.NewRuleLoaderFileSystem(), m)
	e, err = ef.NewEngine(cfg.SecRule())
	return
}

// newResultsLogger writes results to a JSON log file when the config has a results log dir, and to the diagnostic log otherwise.
func newResultsLogger(cfg *config.Main, logger zerolog.Logger) (rl waf.ResultsLogger, closer func() error, err error) {
	closer = func() error { return nil }
	dir := cfg.ResultsLogDir()
	if dir == "" {
		rl = logging.NewZerologResultsLogger(logger)
		return
	}

	var frl logging.ClosableResultsLogger
	frl, err = logging.NewFileResultsLogger(logging.NewLogFileSystem(), logger, dir)
	if err != nil {
		return
	}
	rl = frl
	closer = frl.Close
	return
}
