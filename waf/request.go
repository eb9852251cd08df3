package waf

// HeaderPair represents a header line in an HTTP request or response.
type HeaderPair interface {
	Key() string
	Value() string
}

// HTTPRequest represents an HTTP request whose request line and headers were already split by the front end.
type HTTPRequest interface {
	Method() string
	URI() string
	Protocol() string
	Headers() []HeaderPair
	TransactionID() string
}

// HTTPResponse represents the response side of a transaction.
type HTTPResponse interface {
	Status() int
	Headers() []HeaderPair
}
