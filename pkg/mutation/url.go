package mutation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// URLFunc builds the request URL for one call from its body.
type URLFunc[TBody any] func(body TBody) (string, error)

// Literal returns a URLFunc that ignores the body.
func Literal[TBody any](rawURL string) URLFunc[TBody] {
	return func(TBody) (string, error) {
		return rawURL, nil
	}
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// PathURL interpolates {field} placeholders in pattern with the body's JSON
// fields, path-escaped. A placeholder without a matching field is an error.
func PathURL[TBody any](pattern string) URLFunc[TBody] {
	return func(body TBody) (string, error) {
		if !placeholderRe.MatchString(pattern) {
			return pattern, nil
		}

		fields, err := objectFields(body)
		if err != nil {
			return "", err
		}

		var missing []string

		out := placeholderRe.ReplaceAllStringFunc(pattern, func(match string) string {
			name := match[1 : len(match)-1]

			value, ok := fields[name]
			if !ok {
				missing = append(missing, name)
				return match
			}

			return url.PathEscape(scalar(value))
		})

		if len(missing) > 0 {
			return "", fmt.Errorf("%w: %s", ErrMissingPathParam, strings.Join(missing, ", "))
		}

		return out, nil
	}
}

// TemplateURL parses text as a Go template with the sprig function map and
// executes it against the body for each call.
func TemplateURL[TBody any](name, text string) (URLFunc[TBody], error) {
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL template %s: %w", name, err)
	}

	return func(body TBody) (string, error) {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, body); err != nil {
			return "", fmt.Errorf("failed to render URL template %s: %w", name, err)
		}

		return buf.String(), nil
	}, nil
}

// EncodeQuery serializes the body's top-level fields as a query string. Keys
// are sorted. Strings are used as is, numbers and booleans in their JSON
// form, null as "null", and nested values as compact JSON.
func EncodeQuery(body any) (string, error) {
	fields, err := objectFields(body)
	if err != nil {
		return "", err
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		values.Add(k, scalar(fields[k]))
	}

	return values.Encode(), nil
}

// AppendQuery joins rawURL and an encoded query string.
func AppendQuery(rawURL, query string) string {
	if query == "" {
		return rawURL
	}

	if strings.Contains(rawURL, "?") {
		return rawURL + "&" + query
	}

	return rawURL + "?" + query
}

func objectFields(body any) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mutation body: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, ErrBodyNotObject
	}

	if fields == nil {
		return map[string]any{}, nil
	}

	return fields, nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}

		return string(raw)
	}
}
