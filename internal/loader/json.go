package loader

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"qvrag/internal/domain"
)

var errMalformedJSON = errors.New("malformed JSON")

// JSON flattens a document into one "path: value" line per leaf, in document order.
// Paths use dots for object keys and [i] for array elements; the root is "$".
// Strings are written bare unless they span lines, in which case they stay quoted.
type JSON struct{}

func (JSON) Format() domain.Format { return domain.FormatJSON }

func (JSON) Load(data []byte) (string, error) {
	src, err := decodeUTF8(data)
	if err != nil {
		return "", err
	}
	if !gjson.Valid(src) {
		return "", errMalformedJSON
	}
	var lines []string
	flatten("", gjson.Parse(src), &lines)
	return strings.Join(lines, "\n"), nil
}

func flatten(path string, v gjson.Result, lines *[]string) {
	switch {
	case v.IsObject() && len(v.Map()) > 0:
		v.ForEach(func(key, value gjson.Result) bool {
			flatten(joinKey(path, key.String()), value, lines)
			return true
		})
	case v.IsArray() && len(v.Array()) > 0:
		i := 0
		v.ForEach(func(_, value gjson.Result) bool {
			flatten(path+"["+strconv.Itoa(i)+"]", value, lines)
			i++
			return true
		})
	default:
		if path == "" {
			path = "$"
		}
		*lines = append(*lines, path+": "+leaf(v))
	}
}

func leaf(v gjson.Result) string {
	if v.Type == gjson.String {
		s := v.String()
		if strings.ContainsAny(s, "\r\n") {
			return strconv.Quote(s)
		}
		return s
	}
	return v.Raw
}

func joinKey(path, key string) string {
	if key == "" || strings.ContainsAny(key, ".[]: \t\"") {
		return path + "[" + strconv.Quote(key) + "]"
	}
	if path == "" {
		return key
	}
	return path + "." + key
}
