package main

import (
	"fmt"
	"os"

	"secwaf/waf"

	"gopkg.in/yaml.v3"
)

// fixtureFile is a YAML file of transactions to evaluate.
type fixtureFile struct {
	Transactions []fixture `yaml:"transactions"`
}

type fixture struct {
	ID       string           `yaml:"id"`
	Method   string           `yaml:"method"`
	URI      string           `yaml:"uri"`
	Protocol string           `yaml:"protocol"`
	Headers  []fixtureHeader  `yaml:"headers"`
	Body     string           `yaml:"body"`
	Response *fixtureResponse `yaml:"response"`

	// Expect is the decision the transaction should end with: Pass, Allow or Block. Empty means anything goes.
	Expect string `yaml:"expect"`

	// Rules that must match, and rules that must not.
	ExpectRules    []int `yaml:"expectRules"`
	ExpectNotRules []int `yaml:"expectNotRules"`
}

type fixtureHeader struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type fixtureResponse struct {
	Status  int             `yaml:"status"`
	Headers []fixtureHeader `yaml:"headers"`
	Body    string          `yaml:"body"`
}

func loadFixtures(path string) (ff []fixture, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("read transactions: %w", err)
		return
	}

	var f fixtureFile
	if err = yaml.Unmarshal(data, &f); err != nil {
		err = fmt.Errorf("parse transactions: %w", err)
		return
	}

	for i := range f.Transactions {
		t := &f.Transactions[i]
		if t.Method == "" {
			t.Method = "GET"
		}
		if t.Protocol == "" {
			t.Protocol = "HTTP/1.1"
		}
		if t.ID == "" {
			t.ID = fmt.Sprintf("tx-%d", i+1)
		}
		switch t.Expect {
		case "", waf.Pass.String(), waf.Allow.String(), waf.Block.String():
		default:
			err = fmt.Errorf("transaction %s: unknown expected decision %q", t.ID, t.Expect)
			return
		}
	}

	ff = f.Transactions
	return
}

// fixtureRequest is the waf.HTTPRequest view of a fixture.
type fixtureRequest struct{ f *fixture }

func (r fixtureRequest) Method() string            { return r.f.Method }
func (r fixtureRequest) URI() string               { return r.f.URI }
func (r fixtureRequest) Protocol() string          { return r.f.Protocol }
func (r fixtureRequest) TransactionID() string     { return r.f.ID }
func (r fixtureRequest) Headers() []waf.HeaderPair { return headerPairs(r.f.Headers) }

type fixtureResponseView struct{ r *fixtureResponse }

func (v fixtureResponseView) Status() int               { return v.r.Status }
func (v fixtureResponseView) Headers() []waf.HeaderPair { return headerPairs(v.r.Headers) }

type headerPair struct{ k, v string }

func (h headerPair) Key() string   { return h.k }
func (h headerPair) Value() string { return h.v }

func headerPairs(hh []fixtureHeader) (pp []waf.HeaderPair) {
	for _, h := range hh {
		pp = append(pp, headerPair{k: h.Name, v: h.Value})
	}
	return
}
