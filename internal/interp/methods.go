package interp

import (
	"fmt"
	"strings"

	"github.com/openclaw/camel/internal/camelerr"
	"github.com/openclaw/camel/internal/ir"
	"github.com/openclaw/camel/internal/value"
)

// evalMethodCall dispatches `receiver.method(args)`. Unlike ExprCall,
// a method call is always a pure, expression-level operation — there
// is no such thing as a "tool method"; tools are only ever called by
// bare name at the top level (see codeparser.lowerTool).
func (in *Interpreter) evalMethodCall(e ir.Expr, controlCap value.Capability) (value.Bound, *camelerr.Diagnostic) {
	recv, diag := in.eval(*e.Receiver, controlCap)
	if diag != nil {
		return value.Bound{}, diag
	}
	args := make([]value.Bound, 0, len(e.Positional))
	cap_ := recv.Cap
	for _, pe := range e.Positional {
		b, diag := in.eval(pe, controlCap)
		if diag != nil {
			return value.Bound{}, diag
		}
		args = append(args, b)
		cap_ = value.Merge(cap_, b.Cap)
	}

	var v value.Value
	var err error
	switch recv.Value.Kind() {
	case value.KindString:
		v, err = stringMethod(recv.Value, e.Method, args)
	case value.KindList, value.KindTuple:
		v, err = listMethod(recv.Value, e.Method, args)
	case value.KindDict:
		v, err = dictMethod(recv.Value, e.Method, args)
	default:
		err = fmt.Errorf("object of type %q has no method %q", recv.Value.Kind(), e.Method)
	}
	if err != nil {
		return value.Bound{}, in.errAt(e.Loc, "%s", err.Error())
	}
	return value.Bound{Value: v, Cap: cap_}, nil
}

func methodNamesFor(k value.Kind) []string {
	switch k {
	case value.KindString:
		return []string{
			"upper", "lower", "strip", "lstrip", "rstrip", "split", "rsplit",
			"splitlines", "replace", "format", "startswith", "endswith",
			"find", "rfind", "index", "rindex", "count", "partition",
			"rpartition", "join", "capitalize", "title", "islower", "isupper",
			"istitle", "isdigit", "isalpha", "isalnum", "isspace",
			"removeprefix", "removesuffix",
		}
	case value.KindList, value.KindTuple:
		return []string{"index", "count"}
	case value.KindDict:
		return []string{"get", "keys", "values", "items"}
	default:
		return nil
	}
}

func argString(args []value.Bound, i int, name string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%s: missing argument %d", name, i)
	}
	s, ok := args[i].Value.AsString()
	if !ok {
		return "", fmt.Errorf("%s: argument %d must be a string", name, i)
	}
	return s, nil
}

func stringMethod(recv value.Value, method string, args []value.Bound) (value.Value, error) {
	s, _ := recv.AsString()
	switch method {
	case "upper":
		return value.String(strings.ToUpper(s)), nil
	case "lower":
		return value.String(strings.ToLower(s)), nil
	case "strip":
		if len(args) == 0 {
			return value.String(strings.TrimSpace(s)), nil
		}
		cut, err := argString(args, 0, "strip")
		if err != nil {
			return value.Null, err
		}
		return value.String(strings.Trim(s, cut)), nil
	case "lstrip":
		if len(args) == 0 {
			return value.String(strings.TrimLeft(s, " \t\n\r")), nil
		}
		cut, err := argString(args, 0, "lstrip")
		if err != nil {
			return value.Null, err
		}
		return value.String(strings.TrimLeft(s, cut)), nil
	case "rstrip":
		if len(args) == 0 {
			return value.String(strings.TrimRight(s, " \t\n\r")), nil
		}
		cut, err := argString(args, 0, "rstrip")
		if err != nil {
			return value.Null, err
		}
		return value.String(strings.TrimRight(s, cut)), nil
	case "split":
		return stringSplit(s, args, false)
	case "rsplit":
		return stringSplit(s, args, true)
	case "splitlines":
		lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
		out := make([]value.Value, len(lines))
		for i, l := range lines {
			out[i] = value.String(l)
		}
		return value.List(out), nil
	case "replace":
		old, err := argString(args, 0, "replace")
		if err != nil {
			return value.Null, err
		}
		nw, err := argString(args, 1, "replace")
		if err != nil {
			return value.Null, err
		}
		count := -1
		if len(args) >= 3 {
			if n, ok := args[2].Value.AsInt(); ok {
				count = int(n)
			}
		}
		return value.String(strings.Replace(s, old, nw, count)), nil
	case "format":
		return value.String(formatString(s, args)), nil
	case "startswith":
		p, err := argString(args, 0, "startswith")
		if err != nil {
			return value.Null, err
		}
		return value.Bool(strings.HasPrefix(s, p)), nil
	case "endswith":
		p, err := argString(args, 0, "endswith")
		if err != nil {
			return value.Null, err
		}
		return value.Bool(strings.HasSuffix(s, p)), nil
	case "find":
		p, err := argString(args, 0, "find")
		if err != nil {
			return value.Null, err
		}
		return value.Int(int64(strings.Index(s, p))), nil
	case "rfind":
		p, err := argString(args, 0, "rfind")
		if err != nil {
			return value.Null, err
		}
		return value.Int(int64(strings.LastIndex(s, p))), nil
	case "index":
		p, err := argString(args, 0, "index")
		if err != nil {
			return value.Null, err
		}
		i := strings.Index(s, p)
		if i < 0 {
			return value.Null, fmt.Errorf("substring not found")
		}
		return value.Int(int64(i)), nil
	case "rindex":
		p, err := argString(args, 0, "rindex")
		if err != nil {
			return value.Null, err
		}
		i := strings.LastIndex(s, p)
		if i < 0 {
			return value.Null, fmt.Errorf("substring not found")
		}
		return value.Int(int64(i)), nil
	case "count":
		p, err := argString(args, 0, "count")
		if err != nil {
			return value.Null, err
		}
		return value.Int(int64(strings.Count(s, p))), nil
	case "partition":
		sep, err := argString(args, 0, "partition")
		if err != nil {
			return value.Null, err
		}
		if i := strings.Index(s, sep); i >= 0 {
			return value.Tuple([]value.Value{value.String(s[:i]), value.String(sep), value.String(s[i+len(sep):])}), nil
		}
		return value.Tuple([]value.Value{value.String(s), value.String(""), value.String("")}), nil
	case "rpartition":
		sep, err := argString(args, 0, "rpartition")
		if err != nil {
			return value.Null, err
		}
		if i := strings.LastIndex(s, sep); i >= 0 {
			return value.Tuple([]value.Value{value.String(s[:i]), value.String(sep), value.String(s[i+len(sep):])}), nil
		}
		return value.Tuple([]value.Value{value.String(""), value.String(""), value.String(s)}), nil
	case "join":
		if len(args) != 1 {
			return value.Null, fmt.Errorf("join: expected 1 argument")
		}
		items := sequenceOf(args[0].Value)
		if items == nil {
			return value.Null, fmt.Errorf("join: argument must be an iterable of strings")
		}
		parts := make([]string, len(items))
		for i, it := range items {
			ps, ok := it.AsString()
			if !ok {
				return value.Null, fmt.Errorf("join: sequence item %d is not a string", i)
			}
			parts[i] = ps
		}
		return value.String(strings.Join(parts, s)), nil
	case "capitalize":
		if s == "" {
			return value.String(s), nil
		}
		return value.String(strings.ToUpper(s[:1]) + strings.ToLower(s[1:])), nil
	case "title":
		return value.String(strings.Title(strings.ToLower(s))), nil
	case "islower":
		return value.Bool(s != "" && s == strings.ToLower(s) && strings.ToLower(s) != strings.ToUpper(s)), nil
	case "isupper":
		return value.Bool(s != "" && s == strings.ToUpper(s) && strings.ToLower(s) != strings.ToUpper(s)), nil
	case "istitle":
		return value.Bool(s != "" && s == strings.Title(strings.ToLower(s))), nil
	case "isdigit":
		return value.Bool(isAllFunc(s, isDigitRune)), nil
	case "isalpha":
		return value.Bool(isAllFunc(s, isAlphaRune)), nil
	case "isalnum":
		return value.Bool(isAllFunc(s, func(r rune) bool { return isDigitRune(r) || isAlphaRune(r) })), nil
	case "isspace":
		return value.Bool(isAllFunc(s, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' })), nil
	case "removeprefix":
		p, err := argString(args, 0, "removeprefix")
		if err != nil {
			return value.Null, err
		}
		return value.String(strings.TrimPrefix(s, p)), nil
	case "removesuffix":
		p, err := argString(args, 0, "removesuffix")
		if err != nil {
			return value.Null, err
		}
		return value.String(strings.TrimSuffix(s, p)), nil
	default:
		return value.Null, fmt.Errorf("str has no method %q", method)
	}
}

func stringSplit(s string, args []value.Bound, fromRight bool) (value.Value, error) {
	sep := ""
	hasSep := false
	maxSplit := -1
	if len(args) >= 1 {
		if v, ok := args[0].Value.AsString(); ok {
			sep = v
			hasSep = true
		}
	}
	if len(args) >= 2 {
		if n, ok := args[1].Value.AsInt(); ok {
			maxSplit = int(n)
		}
	}
	var parts []string
	if !hasSep {
		parts = strings.Fields(s)
	} else if maxSplit < 0 {
		parts = strings.Split(s, sep)
	} else if fromRight {
		parts = splitNRight(s, sep, maxSplit)
	} else {
		parts = strings.SplitN(s, sep, maxSplit+1)
	}
	out := make([]value.Value, len(parts))
	for i, p := range parts {
		out[i] = value.String(p)
	}
	return value.List(out), nil
}

func splitNRight(s, sep string, n int) []string {
	all := strings.Split(s, sep)
	if n >= len(all)-1 {
		return all
	}
	head := strings.Join(all[:len(all)-n], sep)
	out := append([]string{head}, all[len(all)-n:]...)
	return out
}

func formatString(tmpl string, args []value.Bound) string {
	var sb strings.Builder
	argIdx := 0
	i := 0
	for i < len(tmpl) {
		if tmpl[i] == '{' && i+1 < len(tmpl) && tmpl[i+1] == '}' {
			if argIdx < len(args) {
				sb.WriteString(args[argIdx].Value.Str())
				argIdx++
			}
			i += 2
			continue
		}
		sb.WriteByte(tmpl[i])
		i++
	}
	return sb.String()
}

func isDigitRune(r rune) bool { return r >= '0' && r <= '9' }
func isAlphaRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isAllFunc(s string, pred func(rune) bool) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

func listMethod(recv value.Value, method string, args []value.Bound) (value.Value, error) {
	items := listOrTuple(recv)
	switch method {
	case "index":
		if len(args) != 1 {
			return value.Null, fmt.Errorf("index: expected 1 argument")
		}
		for i, it := range items {
			if value.Equal(it, args[0].Value) {
				return value.Int(int64(i)), nil
			}
		}
		return value.Null, fmt.Errorf("value not in list")
	case "count":
		if len(args) != 1 {
			return value.Null, fmt.Errorf("count: expected 1 argument")
		}
		n := 0
		for _, it := range items {
			if value.Equal(it, args[0].Value) {
				n++
			}
		}
		return value.Int(int64(n)), nil
	default:
		return value.Null, fmt.Errorf("list has no method %q", method)
	}
}

func dictMethod(recv value.Value, method string, args []value.Bound) (value.Value, error) {
	switch method {
	case "get":
		if len(args) < 1 {
			return value.Null, fmt.Errorf("get: expected at least 1 argument")
		}
		key, ok := args[0].Value.AsString()
		if !ok {
			return value.Null, fmt.Errorf("get: key must be a string")
		}
		if v, present := recv.DictGet(key); present {
			return v, nil
		}
		if len(args) >= 2 {
			return args[1].Value, nil
		}
		return value.Null, nil
	case "keys":
		keys := recv.DictKeys()
		out := make([]value.Value, len(keys))
		for i, k := range keys {
			out[i] = value.String(k)
		}
		return value.List(out), nil
	case "values":
		keys := recv.DictKeys()
		out := make([]value.Value, len(keys))
		for i, k := range keys {
			v, _ := recv.DictGet(k)
			out[i] = v
		}
		return value.List(out), nil
	case "items":
		keys := recv.DictKeys()
		out := make([]value.Value, len(keys))
		for i, k := range keys {
			v, _ := recv.DictGet(k)
			out[i] = value.Tuple([]value.Value{value.String(k), v})
		}
		return value.List(out), nil
	default:
		return value.Null, fmt.Errorf("dict has no method %q", method)
	}
}
