package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"secwaf/metrics"
	"secwaf/waf"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type evalOptions struct {
	transactionsPath string
	concurrency      int
	showMetrics      bool
	crs              bool
}

// evalResult is the outcome of one transaction.
type evalResult struct {
	id       string
	decision waf.Decision
	matched  []int
	expect   string
	err      error

	// Rule expectations that were not met.
	missing    []int
	unexpected []int
}

func (r evalResult) failed() bool {
	return r.err != nil || (r.expect != "" && r.expect != r.decision.String()) || len(r.missing) > 0 || len(r.unexpected) > 0
}

func (r *evalResult) checkRules(f *fixture) {
	matched := make(map[int]bool, len(r.matched))
	for _, id := range r.matched {
		matched[id] = true
	}
	for _, id := range f.ExpectRules {
		if !matched[id] {
			r.missing = append(r.missing, id)
		}
	}
	for _, id := range f.ExpectNotRules {
		if matched[id] {
			r.unexpected = append(r.unexpected, id)
		}
	}
}

func newEvalCmd(root *rootOptions) *cobra.Command {
	opts := &evalOptions{}

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate the transactions of a YAML file and print their decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.transactionsPath == "" {
				return errors.New("transactions path is required")
			}
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			var ff []fixture
			if opts.crs {
				ff, err = loadCRSFixtures(opts.transactionsPath)
			} else {
				ff, err = loadFixtures(opts.transactionsPath)
			}
			if err != nil {
				return err
			}

			e, err := newEngine(cfg, logger)
			if err != nil {
				return err
			}
			defer e.Close()
			for _, aerr := range e.ActivationErrors() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", aerr)
			}

			rl, closeResults, err := newResultsLogger(cfg, logger)
			if err != nil {
				return err
			}
			defer closeResults()

			reg := prometheus.NewRegistry()
			m := metrics.NewMetrics(reg, rl)

			results, err := evalAll(cmd.Context(), e, logger, m, ff, opts.concurrency)
			if err != nil {
				return err
			}

			failed := printResults(cmd.OutOrStdout(), results)
			if opts.showMetrics {
				if err := printMetrics(cmd.OutOrStdout(), reg); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d transactions did not get the expected results", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.transactionsPath, "transactions", "t", "", "Path to a YAML file of transactions")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 4, "Number of transactions evaluated at the same time")
	cmd.Flags().BoolVar(&opts.showMetrics, "metrics", false, "Print evaluation counters after the results")
	cmd.Flags().BoolVar(&opts.crs, "crs", false, "Read the transactions as CRS regression test files. The path can be a file or a directory")

	return cmd
}

// evalAll evaluates every fixture against the shared engine. Each transaction gets its own evaluation, and results keep the fixture order.
func evalAll(ctx context.Context, e waf.SecRuleEngine, logger zerolog.Logger, rl waf.ResultsLogger, ff []fixture, concurrency int) ([]evalResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]evalResult, len(ff))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range ff {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = evalOne(e, logger, rl, &ff[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func evalOne(e waf.SecRuleEngine, logger zerolog.Logger, rl waf.ResultsLogger, f *fixture) (res evalResult) {
	res.id = f.ID
	res.expect = f.Expect

	tr := &matchCollector{next: rl}
	ev, err := e.NewEvaluation(logger, tr, fixtureRequest{f})
	if err != nil {
		res.err = err
		return
	}
	defer ev.Close()

	defer func() {
		res.matched = tr.ids()
		res.checkRules(f)
	}()

	res.decision = ev.EvalPhase(1)
	if !res.decision.IsInterrupt() {
		if err = ev.WriteRequestBody([]byte(f.Body), true); err != nil {
			res.err = err
			return
		}
		res.decision = ev.EvalPhase(2)
	}

	if f.Response != nil && !res.decision.IsInterrupt() {
		ev.SetResponse(fixtureResponseView{f.Response})
		if err = ev.WriteResponseBody([]byte(f.Response.Body), true); err != nil {
			res.err = err
			return
		}
	}

	// The logging phase runs for every transaction, also interrupted ones.
	res.decision = ev.EvalResponsePhases()
	return
}

// matchCollector records the rules that matched in one transaction before passing the events on.
type matchCollector struct {
	next    waf.ResultsLogger
	mu      sync.Mutex
	matched []int
}

func (c *matchCollector) RuleEvaluated(ev waf.EvaluationEvent) {
	if ev.Matched {
		c.mu.Lock()
		c.matched = append(c.matched, ev.RuleID)
		c.mu.Unlock()
	}
	c.next.RuleEvaluated(ev)
}

func (c *matchCollector) PhaseCompleted(transactionID string, phase int, decision waf.Decision) {
	c.next.PhaseCompleted(transactionID, phase, decision)
}

func (c *matchCollector) ids() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.matched...)
}

func printResults(w io.Writer, results []evalResult) (failed int) {
	for _, r := range results {
		status := "ok"
		if r.failed() {
			status = "FAIL"
			failed++
		}

		var ids []string
		for _, id := range r.matched {
			ids = append(ids, strconv.Itoa(id))
		}

		line := fmt.Sprintf("%-4s %s %s rules=[%s]", status, r.id, r.decision, strings.Join(ids, ","))
		if r.expect != "" && r.expect != r.decision.String() {
			line += fmt.Sprintf(" expected=%s", r.expect)
		}
		if len(r.missing) > 0 {
			line += fmt.Sprintf(" missing=%v", r.missing)
		}
		if len(r.unexpected) > 0 {
			line += fmt.Sprintf(" unexpected=%v", r.unexpected)
		}
		if r.err != nil {
			line += fmt.Sprintf(" error=%q", r.err.Error())
		}
		fmt.Fprintln(w, line)
	}
	return
}

// printMetrics writes the counters that were incremented, sorted by name.
func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %v", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
