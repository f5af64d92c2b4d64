package httpapi

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/juju/errors"

	"github.com/goliatone/go-repository-router/router"
)

var wordPattern = regexp.MustCompile(`^\w+$`)

// methodMap maps an HTTP method and the plurality of the router segment to
// an operation.
var methodMap = map[string]map[bool]router.Operation{
	"GET":    {true: router.OpSearch, false: router.OpFind},
	"PUT":    {false: router.OpSave},
	"DELETE": {false: router.OpDestroy},
}

// irregular router names are singular even though they end in "s".
var irregular = map[string]bool{"facts": true}

// derived options are set from the path or the connection, never from the
// query string.
var derived = map[string]bool{
	router.OptionEnvironment: true,
	router.OptionNode:        true,
	router.OptionIP:          true,
}

// ParseURI maps an HTTP method and a /{environment}/{router}/{key} path to a
// request. Query parameters become options; opts are applied last.
func ParseURI(method, path string, query url.Values, opts ...router.RequestOption) (*router.Request, error) {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	environment, routerName, escapedKey := parts[0], parts[1], parts[2]

	if !wordPattern.MatchString(environment) {
		return nil, errors.NotValidf("environment %q, it must be purely alphanumeric", environment)
	}
	if !wordPattern.MatchString(routerName) {
		return nil, errors.NotValidf("router name %q, it must be purely alphanumeric", routerName)
	}

	op, routerName, err := operation(method, routerName)
	if err != nil {
		return nil, err
	}

	if escapedKey == "" {
		return nil, errors.NotValidf("request without key in %s", path)
	}
	key, err := url.PathUnescape(escapedKey)
	if err != nil {
		return nil, errors.NewNotValid(err, fmt.Sprintf("key in %s", path))
	}

	options := router.Options{}
	for name, values := range query {
		if derived[name] || len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			options[name] = values[0]
		} else {
			options[name] = append([]string(nil), values...)
		}
	}
	options[router.OptionEnvironment] = environment

	all := append([]router.RequestOption{router.WithOptions(options)}, opts...)
	return router.NewRequest(routerName, op, key, all...)
}

func operation(method, routerName string) (router.Operation, string, error) {
	byPlurality, ok := methodMap[strings.ToUpper(method)]
	if !ok {
		return "", "", errors.NotValidf("http method %s", method)
	}
	plural := false
	if !irregular[routerName] && strings.HasSuffix(routerName, "s") {
		plural = true
		routerName = strings.TrimSuffix(routerName, "s")
	}
	op, ok := byPlurality[plural]
	if !ok {
		kind := "singular"
		if plural {
			kind = "plural"
		}
		return "", "", errors.NotValidf("%s %s operation", kind, method)
	}
	return op, routerName, nil
}

// URI renders req as /{environment}/{router}/{escaped key}?{options}. Search
// requests use the plural router segment.
func URI(req *router.Request) string {
	name := req.RouterName()
	if req.Method() == router.OpSearch {
		name += "s"
	}

	segments := strings.Split(req.Key(), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	uri := "/" + req.Environment() + "/" + name + "/" + strings.Join(segments, "/")
	if q := queryString(req.Options()); q != "" {
		uri += "?" + q
	}
	return uri
}

func queryString(opts router.Options) string {
	names := make([]string, 0, len(opts))
	for name := range opts {
		if !derived[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	values := url.Values{}
	for _, name := range names {
		switch v := opts[name].(type) {
		case nil:
		case []string:
			values[name] = append([]string(nil), v...)
		default:
			values.Set(name, fmt.Sprint(v))
		}
	}
	return values.Encode()
}
