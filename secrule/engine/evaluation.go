package engine

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	ast "secwaf/secrule/ast"
	re "secwaf/secrule/ruleevaluation"
	"secwaf/waf"

	"github.com/rs/zerolog"
)

const (
	reqBodyTarget  = ast.TargetRequestBody
	respBodyTarget = ast.TargetResponseBody

	// ModSec truncates msg and logdata to this many bytes, so we will too.
	maxLoggedFieldLength = 512
)

// ErrBodyEnded is returned when a body chunk is written after the end of the stream.
var ErrBodyEnded = errors.New("body stream already ended")

type secRuleEvaluationImpl struct {
	logger        zerolog.Logger
	resultsLogger waf.ResultsLogger
	engine        *engineImpl
	tx            *re.Transaction
	reqBody       bodyBuffer
	respBody      bodyBuffer
}

// bodyBuffer keeps the raw body, up to the limit, for REQUEST_BODY and RESPONSE_BODY and for parsing arguments out of it.
type bodyBuffer struct {
	name       ast.TargetName
	limit      int
	buf        []byte
	truncated  bool
	ended      bool
	urlEncoded bool
}

func (s *secRuleEvaluationImpl) TransactionID() string {
	return s.tx.ID()
}

func (s *secRuleEvaluationImpl) EvalPhase(phase int) (wafDecision waf.Decision) {
	outcome := s.engine.scheduler.RunPhase(phase, s.tx, s.logger)

	for _, ev := range outcome.Events {
		if ev.Matched {
			s.ruleTriggered(ev)
		}
		if s.resultsLogger != nil {
			s.resultsLogger.RuleEvaluated(ev)
		}
	}
	if s.resultsLogger != nil {
		s.resultsLogger.PhaseCompleted(s.tx.ID(), phase, outcome.Decision)
	}

	wafDecision = outcome.Decision
	s.logger.Debug().Int("phase", phase).Int("evaluated", outcome.Evaluated).Str("wafDecision", wafDecision.String()).Msg("SecRule engine rule evaluation decision")

	return
}

func (s *secRuleEvaluationImpl) EvalRequestPhases() (wafDecision waf.Decision) {
	for phase := ast.PhaseRequestHeaders; phase <= ast.PhaseRequestBody; phase++ {
		wafDecision = s.EvalPhase(phase)
		if wafDecision.IsInterrupt() {
			return
		}
	}

	return
}

// EvalResponsePhases skips the response phases of an interrupted transaction but always runs the logging phase.
func (s *secRuleEvaluationImpl) EvalResponsePhases() (wafDecision waf.Decision) {
	for phase := ast.PhaseResponseHeaders; phase <= ast.PhaseResponseBody; phase++ {
		if !s.tx.Interrupted() {
			s.EvalPhase(phase)
			continue
		}

		s.logger.Debug().Int("phase", phase).Int("interruptedBy", s.tx.InterruptedBy()).Msg("Phase skipped for interrupted transaction")
		if s.resultsLogger != nil {
			s.resultsLogger.PhaseCompleted(s.tx.ID(), phase, s.tx.Decision())
		}
	}

	wafDecision = s.EvalPhase(ast.PhaseLogging)
	return
}

func (s *secRuleEvaluationImpl) WriteRequestBody(chunk []byte, endOfStream bool) error {
	return s.writeBody(&s.reqBody, chunk, endOfStream)
}

func (s *secRuleEvaluationImpl) SetResponse(resp waf.HTTPResponse) {
	s.tx.Data().SetResponseFrom(resp)
}

func (s *secRuleEvaluationImpl) WriteResponseBody(chunk []byte, endOfStream bool) error {
	return s.writeBody(&s.respBody, chunk, endOfStream)
}

func (s *secRuleEvaluationImpl) writeBody(b *bodyBuffer, chunk []byte, endOfStream bool) (err error) {
	if b.ended {
		err = ErrBodyEnded
		return
	}

	// A transformation failure only leaves the body value out of the affected rule.
	if ferr := s.tx.FeedStream(s.engine.chains, b.name, chunk, endOfStream); ferr != nil {
		s.logger.Warn().Str("target", b.name.String()).Err(ferr).Msg("Body stream could not be transformed")
	}

	b.write(chunk)
	if !endOfStream {
		return
	}

	b.ended = true
	if b.truncated {
		s.logger.Info().Str("target", b.name.String()).Int("limit", b.limit).Msg("Body was truncated")
	}

	err = s.tx.Data().SetBody(b.name, b.buf)
	if err != nil {
		return
	}

	if b.urlEncoded {
		// The buffer was already cut at the total limit.
		limits := s.engine.limits
		limits.MaxLengthTotal = len(b.buf) + 1
		err = s.tx.Data().ParseURLEncodedBody(bytes.NewReader(b.buf), limits)
		if err != nil {
			err = fmt.Errorf("failed to parse url-encoded body: %w", err)
			return
		}
	}

	return
}

func (b *bodyBuffer) write(chunk []byte) {
	room := b.limit - len(b.buf)
	if len(chunk) > room {
		chunk = chunk[:room]
		b.truncated = true
	}
	b.buf = append(b.buf, chunk...)
}

// Release resources.
func (s *secRuleEvaluationImpl) Close() {
	s.tx.Close()
}

func (s *secRuleEvaluationImpl) ruleTriggered(ev waf.EvaluationEvent) {
	msg := truncate(ev.Msg)
	logData := truncate(ev.LogData)

	s.logger.Info().Int("ruleID", ev.RuleID).Int("phase", ev.Phase).Str("decision", ev.Decision.String()).Str("msg", msg).Str("logData", logData).Msg("SecRule triggered")
}

func truncate(s string) string {
	if len(s) > maxLoggedFieldLength {
		cut := maxLoggedFieldLength - 3
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	return s
}

func isURLEncoded(headers []waf.HeaderPair) bool {
	for _, h := range headers {
		if strings.EqualFold(h.Key(), "content-type") {
			return strings.HasPrefix(strings.ToLower(strings.TrimSpace(h.Value())), "application/x-www-form-urlencoded")
		}
	}
	return false
}
