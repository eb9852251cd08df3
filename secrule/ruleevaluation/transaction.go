package ruleevaluation

import (
	"sort"

	ast "secwaf/secrule/ast"
	"secwaf/secrule/propertytree"
	tr "secwaf/secrule/transformations"
	"secwaf/secrule/txdata"
	"secwaf/waf"
)

// Transaction is the state rules are evaluated against for one HTTP transaction: its data trees, the TX variables, the match history and the interrupt flag.
// A Transaction is owned by a single goroutine.
type Transaction struct {
	id   string
	data *txdata.Data

	txVars map[string]ast.Value
	txTree *propertytree.Tree // Rebuilt on demand after TX was modified.

	history MatchHistory

	decision    waf.Decision
	interrupter int

	streams     map[streamKey]*bodyStream
	streamLimit int
}

type streamKey struct {
	link   *Link
	target ast.TargetName
}

// bodyStream is the transformed output of one body stream for one rule link, collected until the end of the stream.
type bodyStream struct {
	st        *tr.StreamState
	out       []byte
	fed       int
	truncated bool
	done      bool
	err       error
}

// NewTransaction creates a transaction over the given data. A nil data is treated as an empty transaction.
func NewTransaction(id string, data *txdata.Data) *Transaction {
	if data == nil {
		data = txdata.New()
	}

	return &Transaction{
		id:       id,
		data:     data,
		txVars:   make(map[string]ast.Value),
		decision: waf.Pass,
		streams:  make(map[streamKey]*bodyStream),
	}
}

// LimitStreams bounds every body stream to maxLength bytes, both what is fed into a link's pipeline and the output kept for matching.
// A stream that reaches the limit is finished early and its later chunks are ignored. Zero or less means no limit.
func (tx *Transaction) LimitStreams(maxLength int) {
	tx.streamLimit = maxLength
}

// StreamTruncated tells whether any body stream of the given variable was cut at the stream limit.
func (tx *Transaction) StreamTruncated(name ast.TargetName) bool {
	for k, bs := range tx.streams {
		if k.target == name && bs.truncated {
			return true
		}
	}
	return false
}

// ID is the transaction id used in evaluation events.
func (tx *Transaction) ID() string {
	return tx.id
}

// Data is the parsed request and response data of the transaction.
func (tx *Transaction) Data() *txdata.Data {
	return tx.data
}

// History is the transaction's record of matched values. It is meant for inspection; the evaluator is the only writer.
func (tx *Transaction) History() *MatchHistory {
	return &tx.history
}

// Interrupted tells whether a rule requested the transaction to stop.
func (tx *Transaction) Interrupted() bool {
	return tx.decision.IsInterrupt()
}

// Decision is Pass until a disruptive action interrupts the transaction.
func (tx *Transaction) Decision() waf.Decision {
	return tx.decision
}

// InterruptedBy is the id of the rule that interrupted the transaction, or 0.
func (tx *Transaction) InterruptedBy() int {
	return tx.interrupter
}

// interrupt is idempotent and the first interrupt wins.
func (tx *Transaction) interrupt(d waf.Decision, ruleID int) {
	if tx.Interrupted() || !d.IsInterrupt() {
		return
	}
	tx.decision = d
	tx.interrupter = ruleID
}

// TxVar returns a TX variable. Names are case-insensitive and stored in lower case.
func (tx *Transaction) TxVar(name string) (v ast.Value, ok bool) {
	v, ok = tx.txVars[name]
	return
}

func (tx *Transaction) setTxVar(name string, v ast.Value) {
	tx.txVars[name] = v
	tx.txTree = nil
}

func (tx *Transaction) deleteTxVar(name string) {
	delete(tx.txVars, name)
	tx.txTree = nil
}

// tree returns the data tree for a variable kind. TX is published as a flat tree sorted by name.
func (tx *Transaction) tree(name ast.TargetName) *propertytree.Tree {
	if name != ast.TargetTx {
		return tx.data.Tree(name)
	}

	if tx.txTree == nil {
		names := make([]string, 0, len(tx.txVars))
		for k := range tx.txVars {
			names = append(names, k)
		}
		sort.Strings(names)

		b := propertytree.NewBuilder(ast.TargetTx.String())
		for _, k := range names {
			b.AddValue(propertytree.RootID, k, tx.txVars[k].String())
		}
		tx.txTree = b.Publish()
	}

	return tx.txTree
}

// FeedStream passes the next chunk of a body stream through the pipeline of every rule link that looks at that stream.
// Each link keeps its own stream state. The transformed output is matched once the stream has ended, or once it reached the stream limit.
func (tx *Transaction) FeedStream(chains []*Chain, name ast.TargetName, chunk []byte, endOfStream bool) (err error) {
	for _, c := range chains {
		for _, l := range c.links {
			if !l.readsStream(name) {
				continue
			}

			key := streamKey{link: l, target: name}
			bs, ok := tx.streams[key]
			if !ok {
				bs = &bodyStream{st: l.pipeline.OpenStream()}
				tx.streams[key] = bs
			}
			if bs.done {
				continue
			}

			in, eos := chunk, endOfStream
			if tx.streamLimit > 0 {
				if room := tx.streamLimit - bs.fed; len(in) > room {
					in, eos = in[:room], true
					bs.truncated = true
				}
			}
			bs.fed += len(in)

			var out []byte
			out, _, bs.err = l.pipeline.EvaluateStream(in, bs.st, eos)
			if tx.streamLimit > 0 {
				// Transformations like hexEncode grow their input.
				if room := tx.streamLimit - len(bs.out); len(out) > room {
					out = out[:room]
					bs.truncated = true
				}
			}
			bs.out = append(bs.out, out...)
			if bs.err != nil || eos {
				bs.done = true
				bs.st.Close()
			}
			if bs.err != nil && err == nil {
				err = &RuleError{RuleID: l.Rule.ID, Kind: TransformationFailure, Err: bs.err}
			}
		}
	}

	return
}

// streamOutput returns the finished transformed output of a body stream for a link.
func (tx *Transaction) streamOutput(l *Link, name ast.TargetName) (bs *bodyStream, ok bool) {
	bs, ok = tx.streams[streamKey{link: l, target: name}]
	return
}

// Close releases every stream state of the transaction, including streams that never saw their end.
func (tx *Transaction) Close() {
	for _, bs := range tx.streams {
		bs.st.Close()
	}
	tx.streams = make(map[streamKey]*bodyStream)
}
