package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	ast "secwaf/secrule/ast"
	"secwaf/secrule/ruleparsing"
	"secwaf/secrule/ruleset"

	"github.com/spf13/cobra"
)

func newRulesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the active, removed and invalid rules of the configured rule files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			rl := ruleparsing.NewFileRuleLoader(ruleparsing.NewRuleParser(), ruleparsing.NewRuleLoaderFileSystem(), cfg.RuleFilePaths()...)
			doc, err := rl.Rules()
			if err != nil {
				return err
			}

			m, err := newMatchers(cfg, logger)
			if err != nil {
				return err
			}

			removals := ruleset.Removals{
				IDs:  append(doc.RemoveIDs, cfg.RemoveByIDs...),
				Tags: append(doc.RemoveTags, cfg.RemoveTags...),
			}
			rs, errs := ruleset.Activate(doc.Rules, removals, m)
			defer rs.Close()

			return printRules(cmd.OutOrStdout(), rs, errs)
		},
	}
}

func printRules(w io.Writer, rs *ruleset.RuleSet, errs []error) error {
	for phase := ast.PhaseRequestHeaders; phase <= ast.NumPhases; phase++ {
		for _, c := range rs.Phase(phase) {
			head := c.Head()
			fmt.Fprintf(w, "active  %d phase=%d links=%d tags=[%s]\n", head.ID, phase, len(c.Links()), strings.Join(head.Tags, ","))
		}
	}

	for _, r := range rs.Removed() {
		fmt.Fprintf(w, "removed %d phase=%d tags=[%s]\n", r.ID, r.Phase, strings.Join(r.Tags, ","))
	}

	for _, err := range errs {
		var ce *ruleset.ConfigurationError
		if errors.As(err, &ce) {
			fmt.Fprintf(w, "invalid %d %v\n", ce.RuleID, ce.Err)
			continue
		}
		fmt.Fprintf(w, "invalid %v\n", err)
	}

	_, err := fmt.Fprintf(w, "%d active, %d removed, %d invalid\n", rs.Len(), len(rs.Removed()), len(errs))
	return err
}
