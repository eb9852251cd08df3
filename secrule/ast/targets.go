package ast

// TargetName describes in which part of the transaction we are to look.
type TargetName int

// Targets that rules can use.
// Ensure this is in sync with TargetNamesStrings.
const (
	_ TargetName = iota
	TargetArgs
	TargetArgsGet
	TargetArgsGetNames
	TargetArgsNames
	TargetArgsPost
	TargetArgsPostNames
	TargetMatchedVar
	TargetMatchedVarName
	TargetMatchedVars
	TargetMatchedVarsNames
	TargetQueryString
	TargetRequestBasename
	TargetRequestBody
	TargetRequestCookies
	TargetRequestCookiesNames
	TargetRequestFilename
	TargetRequestHeaders
	TargetRequestHeadersNames
	TargetRequestLine
	TargetRequestMethod
	TargetRequestProtocol
	TargetRequestURI
	TargetRequestURIRaw
	TargetResponseBody
	TargetResponseHeaders
	TargetResponseHeadersNames
	TargetResponseStatus
	TargetTx
	_lastTarget
)

// TargetNamesStrings gets string names of targets.
var TargetNamesStrings = map[TargetName]string{
	TargetArgs:                 "ARGS",
	TargetArgsGet:              "ARGS_GET",
	TargetArgsGetNames:         "ARGS_GET_NAMES",
	TargetArgsNames:            "ARGS_NAMES",
	TargetArgsPost:             "ARGS_POST",
	TargetArgsPostNames:        "ARGS_POST_NAMES",
	TargetMatchedVar:           "MATCHED_VAR",
	TargetMatchedVarName:       "MATCHED_VAR_NAME",
	TargetMatchedVars:          "MATCHED_VARS",
	TargetMatchedVarsNames:     "MATCHED_VARS_NAMES",
	TargetQueryString:          "QUERY_STRING",
	TargetRequestBasename:      "REQUEST_BASENAME",
	TargetRequestBody:          "REQUEST_BODY",
	TargetRequestCookies:       "REQUEST_COOKIES",
	TargetRequestCookiesNames:  "REQUEST_COOKIES_NAMES",
	TargetRequestFilename:      "REQUEST_FILENAME",
	TargetRequestHeaders:       "REQUEST_HEADERS",
	TargetRequestHeadersNames:  "REQUEST_HEADERS_NAMES",
	TargetRequestLine:          "REQUEST_LINE",
	TargetRequestMethod:        "REQUEST_METHOD",
	TargetRequestProtocol:      "REQUEST_PROTOCOL",
	TargetRequestURI:           "REQUEST_URI",
	TargetRequestURIRaw:        "REQUEST_URI_RAW",
	TargetResponseBody:         "RESPONSE_BODY",
	TargetResponseHeaders:      "RESPONSE_HEADERS",
	TargetResponseHeadersNames: "RESPONSE_HEADERS_NAMES",
	TargetResponseStatus:       "RESPONSE_STATUS",
	TargetTx:                   "TX",
}

// TargetNamesFromStr gets TargetName enums from upper case strings.
var TargetNamesFromStr = func() map[string]TargetName {
	m := make(map[string]TargetName, len(TargetNamesStrings))
	for k, v := range TargetNamesStrings {
		m[v] = k
	}
	return m
}()

func (n TargetName) String() string {
	if s, ok := TargetNamesStrings[n]; ok {
		return s
	}
	return "UNKNOWN"
}

// IsKnown tells whether the target name is one of the declared targets.
func (n TargetName) IsKnown() bool {
	return n > 0 && n < _lastTarget
}

// IsMatched tells whether the target is one of the pseudo-variables reading data previously matched by the rule chain.
func (n TargetName) IsMatched() bool {
	switch n {
	case TargetMatchedVar, TargetMatchedVarName, TargetMatchedVars, TargetMatchedVarsNames:
		return true
	}
	return false
}

// IsStream tells whether the target is body data that can arrive incrementally.
func (n TargetName) IsStream() bool {
	return n == TargetRequestBody || n == TargetResponseBody
}

var namesOf = map[TargetName]TargetName{
	TargetArgsGetNames:         TargetArgsGet,
	TargetArgsNames:            TargetArgs,
	TargetArgsPostNames:        TargetArgsPost,
	TargetRequestCookiesNames:  TargetRequestCookies,
	TargetRequestHeadersNames:  TargetRequestHeaders,
	TargetResponseHeadersNames: TargetResponseHeaders,
}

// NamesOf tells, for a target like ARGS_NAMES, which collection it lists the names of.
func (n TargetName) NamesOf() (collection TargetName, ok bool) {
	collection, ok = namesOf[n]
	return
}
