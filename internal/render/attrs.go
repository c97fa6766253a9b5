package render

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"github.com/conneroisu/flight/internal/node"
)

// attributeNames maps tree property names to their HTML attribute
// spellings.
var attributeNames = map[string]string{
	"className":       "class",
	"htmlFor":         "for",
	"httpEquiv":       "http-equiv",
	"acceptCharset":   "accept-charset",
	"tabIndex":        "tabindex",
	"readOnly":        "readonly",
	"maxLength":       "maxlength",
	"autoComplete":    "autocomplete",
	"autoFocus":       "autofocus",
	"crossOrigin":     "crossorigin",
	"spellCheck":      "spellcheck",
	"contentEditable": "contenteditable",
	"srcSet":          "srcset",
}

// voidTags is the self-closing allowlist.
var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true,
	"embed": true, "hr": true, "img": true, "input": true,
	"link": true, "meta": true, "param": true, "source": true,
	"track": true, "wbr": true,
}

// rawTags bypass escaping for their text children.
var rawTags = map[string]bool{
	"script": true,
	"style":  true,
}

// vendorPrefixes are the style-key prefixes that get a leading hyphen
// when flattened ("WebkitTransform" -> "-webkit-transform").
var vendorPrefixes = []string{"Webkit", "Moz", "O", "ms"}

func (r *renderer) attribute(key string, value interface{}) {
	if value == nil {
		return
	}

	name := key
	if renamed, ok := attributeNames[key]; ok {
		name = renamed
	}

	if key == "style" {
		if flattened, ok := flattenStyle(value); ok {
			r.sb.WriteString(` style="`)
			r.sb.WriteString(escape(flattened))
			r.sb.WriteByte('"')
		}
		return
	}

	switch v := value.(type) {
	case bool:
		// Boolean attributes render bare when true and vanish when false.
		if v {
			r.sb.WriteByte(' ')
			r.sb.WriteString(name)
		}
	case string:
		r.writeAttr(name, v)
	case json.Number:
		r.writeAttr(name, v.String())
	case int:
		r.writeAttr(name, strconv.Itoa(v))
	case int64:
		r.writeAttr(name, strconv.FormatInt(v, 10))
	case float64:
		r.writeAttr(name, strconv.FormatFloat(v, 'g', -1, 64))
	default:
		// Non-serializable values (functions, arbitrary structs) are
		// dropped rather than stringified.
	}
}

func (r *renderer) writeAttr(name, value string) {
	r.sb.WriteByte(' ')
	r.sb.WriteString(name)
	r.sb.WriteString(`="`)
	r.sb.WriteString(escape(value))
	r.sb.WriteByte('"')
}

// flattenStyle converts a style-shaped object to "key:value;..." with
// kebab-case keys.
func flattenStyle(value interface{}) (string, bool) {
	var sb strings.Builder

	write := func(key string, v interface{}) {
		text, ok := styleValue(v)
		if !ok {
			return
		}
		if sb.Len() > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(kebabCase(key))
		sb.WriteByte(':')
		sb.WriteString(text)
	}

	switch styles := value.(type) {
	case *node.Props:
		styles.Range(func(key string, v interface{}) bool {
			write(key, v)
			return true
		})
	case map[string]interface{}:
		// Unordered input still renders, but property objects should be
		// *node.Props when order matters.
		for key, v := range styles {
			write(key, v)
		}
	case string:
		return styles, true
	default:
		return "", false
	}

	if sb.Len() == 0 {
		return "", false
	}
	sb.WriteByte(';')

	return sb.String(), true
}

func styleValue(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	default:
		return "", false
	}
}

// kebabCase converts a camelCase style key, giving known vendor prefixes
// a leading hyphen.
func kebabCase(key string) string {
	for _, prefix := range vendorPrefixes {
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			rest := key[len(prefix):]
			if unicode.IsUpper(rune(rest[0])) {
				return "-" + strings.ToLower(prefix) + kebabCase(rest)
			}
		}
	}

	var sb strings.Builder
	for _, r := range key {
		if unicode.IsUpper(r) {
			sb.WriteByte('-')
			sb.WriteRune(unicode.ToLower(r))
		} else {
			sb.WriteRune(r)
		}
	}

	return sb.String()
}
