package engine

import (
	"errors"
	"io"

	sr "secwaf/secrule"
	re "secwaf/secrule/ruleevaluation"
	"secwaf/secrule/ruleset"
	"secwaf/secrule/txdata"
	"secwaf/waf"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type engineImpl struct {
	rules          *ruleset.RuleSet
	chains         []*re.Chain
	scheduler      *re.Scheduler
	activationErrs []error
	limits         txdata.Limits
	runtime        re.RuntimeMatchers
}

// NewEngine activates the rules of a rule document. Rules that are removed by the document or the config are left out.
// Rules that are not valid are left out too, and are reported by ActivationErrors.
func NewEngine(logger zerolog.Logger, doc *sr.RuleDocument, config waf.SecRuleConfig, m re.Matchers) (engine waf.SecRuleEngine, err error) {
	if doc == nil {
		err = errors.New("no rule document")
		return
	}

	removals := ruleset.Removals{
		IDs:  append(append([]int(nil), doc.RemoveIDs...), config.RemoveByID()...),
		Tags: append(append([]string(nil), doc.RemoveTags...), config.RemoveByTag()...),
	}

	rules, errs := ruleset.Activate(doc.Rules, removals, m)
	for _, e := range errs {
		var ce *ruleset.ConfigurationError
		if errors.As(e, &ce) {
			logger.Warn().Int("ruleID", ce.RuleID).Err(ce.Err).Msg("Rule left out of the rule set")
			continue
		}
		logger.Warn().Err(e).Msg("Rule left out of the rule set")
	}

	for _, r := range rules.Removed() {
		logger.Debug().Int("ruleID", r.ID).Msg("Rule removed by config")
	}

	logger.Info().Int("activeRules", rules.Len()).Int("removedRules", len(rules.Removed())).Int("invalidRules", len(errs)).Msg("Rule set activated")

	limits := txdata.Limits(config.BodyLimits())
	if limits.MaxLengthField <= 0 {
		limits.MaxLengthField = txdata.DefaultLimits.MaxLengthField
	}
	if limits.MaxLengthTotal <= 0 {
		limits.MaxLengthTotal = txdata.DefaultLimits.MaxLengthTotal
	}

	engine = &engineImpl{
		rules:          rules,
		chains:         rules.Chains(),
		scheduler:      re.NewScheduler(rules),
		activationErrs: errs,
		limits:         limits,
		runtime:        m.Runtime,
	}

	return
}

func (e *engineImpl) NewEvaluation(logger zerolog.Logger, resultsLogger waf.ResultsLogger, req waf.HTTPRequest) (ev waf.SecRuleEvaluation, err error) {
	data, err := txdata.FromRequest(req)
	if err != nil {
		return
	}

	id := req.TransactionID()
	if id == "" {
		id = uuid.NewString()
	}
	logger = logger.With().Str("transactionID", id).Logger()

	tx := re.NewTransaction(id, data)
	tx.LimitStreams(e.limits.MaxLengthTotal)

	ev = &secRuleEvaluationImpl{
		logger:        logger,
		resultsLogger: resultsLogger,
		engine:        e,
		tx:            tx,
		reqBody:       bodyBuffer{name: reqBodyTarget, limit: e.limits.MaxLengthTotal, urlEncoded: isURLEncoded(req.Headers())},
		respBody:      bodyBuffer{name: respBodyTarget, limit: e.limits.MaxLengthTotal},
	}

	return
}

func (e *engineImpl) ActivationErrors() []error {
	return e.activationErrs
}

// Close releases the compiled patterns of the rule set.
func (e *engineImpl) Close() (err error) {
	err = e.rules.Close()
	if c, ok := e.runtime.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return
}
