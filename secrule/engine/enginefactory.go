package engine

import (
	"fmt"
	"strings"

	sr "secwaf/secrule"
	re "secwaf/secrule/ruleevaluation"
	"secwaf/secrule/ruleparsing"
	"secwaf/waf"

	"github.com/rs/zerolog"
)

// NewEngineFactory creates a factory that can create SecRule engines from rule files.
func NewEngineFactory(logger zerolog.Logger, parser sr.RuleParser, fs ruleparsing.RuleLoaderFileSystem, m re.Matchers) waf.SecRuleEngineFactory {
	return &engineFactoryImpl{
		logger: logger,
		parser: parser,
		fs:     fs,
		m:      m,
	}
}

type engineFactoryImpl struct {
	logger zerolog.Logger
	parser sr.RuleParser
	fs     ruleparsing.RuleLoaderFileSystem
	m      re.Matchers
}

func (f *engineFactoryImpl) NewEngine(config waf.SecRuleConfig) (engine waf.SecRuleEngine, err error) {
	files := config.RuleFiles()
	f.logger.Info().Str("ruleFiles", strings.Join(files, ",")).Msg("Loading rules")

	rl := ruleparsing.NewFileRuleLoader(f.parser, f.fs, files...)
	doc, err := rl.Rules()
	if err != nil {
		err = fmt.Errorf("failed to load rules: %w", err)
		return
	}

	engine, err = NewEngine(f.logger, doc, config, f.m)
	return
}
