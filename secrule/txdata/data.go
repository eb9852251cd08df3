package txdata

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	ast "secwaf/secrule/ast"
	"secwaf/secrule/propertytree"
	"secwaf/waf"
)

// Data holds the parsed data of one transaction as published property trees, one per variable kind.
// A published tree is never modified. When more data arrives, such as the response, new trees are published next to the existing ones.
// Data is owned by a single transaction and is not safe for concurrent use.
type Data struct {
	trees    map[ast.TargetName]*propertytree.Tree
	argsGet  []Pair
	argsPost []Pair
}

// New creates empty transaction data. Every variable resolves to an empty collection until it is set.
func New() *Data {
	return &Data{trees: make(map[ast.TargetName]*propertytree.Tree)}
}

// FromRequest creates transaction data from a request whose request line and headers were already split.
func FromRequest(req waf.HTTPRequest) (d *Data, err error) {
	d = New()
	err = d.SetRequest(req.Method(), req.URI(), req.Protocol(), headerPairs(req.Headers()))
	return
}

// Tree returns the tree for a variable kind, or nil if the transaction has no such data.
func (d *Data) Tree(name ast.TargetName) *propertytree.Tree {
	return d.trees[name]
}

// SetRequest publishes the trees of the request line, the query arguments, the headers and the cookies.
func (d *Data) SetRequest(method string, uri string, protocol string, headers []Pair) (err error) {
	var parsed *url.URL
	parsed, err = url.ParseRequestURI(uri)
	if err != nil {
		err = fmt.Errorf("failed to parse request uri %q: %w", uri, err)
		return
	}

	d.argsGet, err = ParseURLEncoded(strings.NewReader(parsed.RawQuery), DefaultLimits)
	if err != nil {
		err = fmt.Errorf("failed to parse query string: %w", err)
		return
	}

	filename := parsed.Path
	basename := filename
	if i := strings.LastIndexByte(filename, '/'); i >= 0 {
		basename = filename[i+1:]
	}

	d.setScalar(ast.TargetRequestMethod, method)
	d.setScalar(ast.TargetRequestProtocol, protocol)
	d.setScalar(ast.TargetRequestLine, method+" "+uri+" "+protocol)
	d.setScalar(ast.TargetRequestURIRaw, uri)
	d.setScalar(ast.TargetRequestURI, parsed.RequestURI())
	d.setScalar(ast.TargetRequestFilename, filename)
	d.setScalar(ast.TargetRequestBasename, basename)
	d.setScalar(ast.TargetQueryString, parsed.RawQuery)

	d.trees[ast.TargetRequestHeaders] = flatTree(ast.TargetRequestHeaders, headers)

	var cookies []Pair
	for _, h := range headers {
		if strings.EqualFold(h.Key, "cookie") {
			cookies = append(cookies, splitCookies(h.Value)...)
		}
	}
	d.trees[ast.TargetRequestCookies] = flatTree(ast.TargetRequestCookies, cookies)

	d.publishArgs()
	return
}

// SetPostArgs publishes the arguments found in the request body.
func (d *Data) SetPostArgs(pairs []Pair) {
	d.argsPost = append([]Pair(nil), pairs...)
	d.publishArgs()
}

// ParseURLEncodedBody reads an application/x-www-form-urlencoded request body and publishes its arguments.
func (d *Data) ParseURLEncodedBody(r io.Reader, limits Limits) (err error) {
	var pairs []Pair
	pairs, err = ParseURLEncoded(r, limits)
	if err != nil {
		return
	}
	d.SetPostArgs(pairs)
	return
}

// SetResponse publishes the trees of the response status line and headers.
func (d *Data) SetResponse(status int, headers []Pair) {
	d.setScalar(ast.TargetResponseStatus, strconv.Itoa(status))
	d.trees[ast.TargetResponseHeaders] = flatTree(ast.TargetResponseHeaders, headers)
}

// SetResponseFrom is SetResponse for a waf.HTTPResponse.
func (d *Data) SetResponseFrom(resp waf.HTTPResponse) {
	d.SetResponse(resp.Status(), headerPairs(resp.Headers()))
}

// SetBody publishes the raw body of the request or the response.
func (d *Data) SetBody(name ast.TargetName, body []byte) (err error) {
	if !name.IsStream() {
		err = fmt.Errorf("%v is not a body", name)
		return
	}
	d.setScalar(name, string(body))
	return
}

func (d *Data) setScalar(name ast.TargetName, value string) {
	b := propertytree.NewBuilder(name.String())
	b.SetValue(propertytree.RootID, value)
	d.trees[name] = b.Publish()
}

func (d *Data) publishArgs() {
	d.trees[ast.TargetArgsGet] = argsTree(ast.TargetArgsGet, d.argsGet)
	d.trees[ast.TargetArgsPost] = argsTree(ast.TargetArgsPost, d.argsPost)

	all := make([]Pair, 0, len(d.argsGet)+len(d.argsPost))
	all = append(all, d.argsGet...)
	all = append(all, d.argsPost...)
	d.trees[ast.TargetArgs] = argsTree(ast.TargetArgs, all)
}

func flatTree(name ast.TargetName, pairs []Pair) *propertytree.Tree {
	b := propertytree.NewBuilder(name.String())
	for _, p := range pairs {
		b.AddValue(propertytree.RootID, p.Key, p.Value)
	}
	return b.Publish()
}

// argsTree decomposes argument names like user[address][city] into nested nodes. Arguments sharing a prefix share the intermediate nodes.
func argsTree(name ast.TargetName, pairs []Pair) *propertytree.Tree {
	type childKey struct {
		parent propertytree.NodeID
		name   string
	}
	inner := make(map[childKey]propertytree.NodeID)

	b := propertytree.NewBuilder(name.String())
	for _, p := range pairs {
		path := splitArgName(p.Key)
		parent := propertytree.RootID
		for _, seg := range path[:len(path)-1] {
			k := childKey{parent, seg}
			id, ok := inner[k]
			if !ok {
				id, _ = b.Add(parent, seg)
				inner[k] = id
			}
			parent = id
		}
		b.AddValue(parent, path[len(path)-1], p.Value)
	}
	return b.Publish()
}

// splitArgName splits a[b][c] into [a b c]. Empty brackets as in a[] are dropped, and malformed names are kept whole.
func splitArgName(key string) []string {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return []string{key}
	}

	path := []string{key[:open]}
	rest := key[open:]
	for len(rest) > 0 {
		if rest[0] != '[' {
			return []string{key}
		}
		end := strings.IndexByte(rest, ']')
		if end == -1 {
			return []string{key}
		}
		if seg := rest[1:end]; seg != "" {
			if strings.IndexByte(seg, '[') >= 0 {
				return []string{key}
			}
			path = append(path, seg)
		}
		rest = rest[end+1:]
	}
	return path
}

// splitCookies splits a Cookie header value such as "a=1; b=2". Cookies without an equal sign get an empty value.
func splitCookies(header string) (pairs []Pair) {
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		pairs = append(pairs, Pair{Key: strings.TrimSpace(k), Value: strings.TrimSpace(v)})
	}
	return
}

func headerPairs(hh []waf.HeaderPair) (pairs []Pair) {
	for _, h := range hh {
		pairs = append(pairs, Pair{Key: h.Key(), Value: h.Value()})
	}
	return
}
