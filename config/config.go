// Package config holds the engine configuration, loaded from YAML.
package config

import (
	"secwaf/waf"
)

// Matcher backends.
const (
	BackendGo        = "go"
	BackendHyperscan = "hyperscan"
)

// Main is the top level configuration.
type Main struct {
	// RuleFiles are SecRule files, loaded in order. Relative paths are relative to the config file.
	RuleFiles   []string `yaml:"ruleFiles"`
	RemoveByIDs []int    `yaml:"removeById"`
	RemoveTags  []string `yaml:"removeByTag"`

	Bodies     Bodies     `yaml:"bodies"`
	Matcher    Matcher    `yaml:"matcher"`
	Logging    Logging    `yaml:"logging"`
	ResultsLog ResultsLog `yaml:"resultsLog"`

	baseDir string
}

// Bodies are the limits in bytes for request and response bodies.
type Bodies struct {
	MaxLengthField int `yaml:"maxLengthField"`
	MaxLengthTotal int `yaml:"maxLengthTotal"`
}

// Matcher selects how pattern operators are evaluated.
type Matcher struct {
	Backend string `yaml:"backend"`

	// CacheDir is where compiled Hyperscan databases are kept between runs. Empty disables the cache.
	CacheDir string `yaml:"cacheDir"`

	// RuntimeCacheSize is the number of patterns compiled during evaluation, because of macros, that are kept.
	RuntimeCacheSize int `yaml:"runtimeCacheSize"`
}

// Logging configures the diagnostic log.
type Logging struct {
	Level string `yaml:"level"`
}

// ResultsLog configures where rule results are written. Results go to the diagnostic log when Dir is empty.
type ResultsLog struct {
	Dir string `yaml:"dir"`
}

// Default returns the configuration used for everything the YAML leaves out.
func Default() *Main {
	return &Main{
		Bodies: Bodies{
			MaxLengthField: 1024 * 20,
			MaxLengthTotal: 1024 * 1024 * 4,
		},
		Matcher: Matcher{
			Backend:          BackendGo,
			RuntimeCacheSize: 1000,
		},
		Logging: Logging{Level: "info"},
	}
}

// RuleFilePaths returns the rule files with relative paths resolved.
func (c *Main) RuleFilePaths() (pp []string) {
	for _, f := range c.RuleFiles {
		pp = append(pp, c.resolvePath(f))
	}
	return
}

// ResultsLogDir returns the results log dir with a relative path resolved.
func (c *Main) ResultsLogDir() string {
	return c.resolvePath(c.ResultsLog.Dir)
}

// ResolvedCacheDir returns the Hyperscan cache dir with a relative path resolved.
func (c *Main) ResolvedCacheDir() string {
	return c.resolvePath(c.Matcher.CacheDir)
}

// SecRule returns the view of the configuration the SecRule engine reads.
func (c *Main) SecRule() waf.SecRuleConfig {
	return &secRuleConfig{c}
}

type secRuleConfig struct {
	c *Main
}

func (s *secRuleConfig) RuleFiles() []string   { return s.c.RuleFilePaths() }
func (s *secRuleConfig) RemoveByID() []int     { return s.c.RemoveByIDs }
func (s *secRuleConfig) RemoveByTag() []string { return s.c.RemoveTags }
func (s *secRuleConfig) BodyLimits() waf.LengthLimits {
	return waf.LengthLimits{MaxLengthField: s.c.Bodies.MaxLengthField, MaxLengthTotal: s.c.Bodies.MaxLengthTotal}
}
