package extract

import (
	"regexp"
	"strings"

	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

var (
	jsES6ImportRe = regexp.MustCompile(`\bimport\s+(.*?)\s+from\s+['"]([^'"]+)['"]`)
	jsBareImport  = regexp.MustCompile(`\bimport\s+['"]([^'"]+)['"]`)
	jsRequireRe   = regexp.MustCompile(`\brequire\(\s*['"]([^'"]+)['"]\s*\)`)

	jsFunctionRe = regexp.MustCompile(`\bfunction\s+(\w+)\s*\(([^)]*)\)`)
	jsArrowRe    = regexp.MustCompile(`\b(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?\(([^)]*)\)\s*=>`)
	jsArrowOneRe = regexp.MustCompile(`\b(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?(\w+)\s*=>`)
	jsMethodRe   = regexp.MustCompile(`^\s*(?:async\s+)?(\w+)\s*\(([^)]*)\)\s*\{`)

	jsClassRe       = regexp.MustCompile(`\b(class|interface)\s+(\w+)(?:\s+extends\s+([\w.]+))?`)
	jsClassHeaderRe = regexp.MustCompile(`\bclass\s+(\w+)`)

	jsDirectCallRe = regexp.MustCompile(`(\w+)\s*\(`)
	jsMethodCallRe = regexp.MustCompile(`(\w+)\.(\w+)\s*\(`)
	jsNewCallRe    = regexp.MustCompile(`\bnew\s+([A-Z]\w*)\s*\(`)

	jsPropertyRe = regexp.MustCompile(`\bthis\.(\w+)\s*=`)
)

var jsCallDenylist = map[string]struct{}{
	"if": {}, "for": {}, "while": {}, "switch": {}, "catch": {},
	"function": {}, "return": {}, "new": {}, "require": {}, "import": {},
	"export": {}, "typeof": {}, "await": {}, "console": {}, "log": {},
}

// jsMethodDenylist keeps control-flow headers out of the class-method scan.
var jsMethodDenylist = map[string]struct{}{
	"if": {}, "for": {}, "while": {}, "switch": {}, "catch": {},
	"function": {}, "return": {},
}

type jsExtractor struct{}

func (jsExtractor) Language() model.Language { return model.LanguageJavaScript }

// Extract handles JavaScript and TypeScript. Modules declare no package, so
// pkgHint supplies the module name; TypeScript interfaces are recorded as
// interface-kind classes.
func (e *jsExtractor) Extract(text, pkgHint string, depth model.Depth) Facts {
	module := pkgHint
	if module == "" {
		module = model.DefaultPackage
	}
	facts := Facts{Package: module}

	lines := strings.Split(text, "\n")
	offsets := lineStartOffsets(text)
	spans := classSpans(lines, jsClassHeaderRe)

	facts.Functions = e.extractFunctions(text, lines, offsets, spans, module, depth)
	facts.Classes = e.extractClasses(text, lines, offsets, module, depth)

	if depth >= model.DepthMedium {
		facts.Imports = extractJSImports(text)
		// shorthand methods have no declaration keyword, so the call scan
		// needs to know which lines declared what
		declared := make(map[int]string, len(facts.Functions))
		for _, fn := range facts.Functions {
			declared[fn.Line] = fn.Name
		}
		facts.Calls = attributeCalls(e.extractCalls(lines, declared), facts.Functions)
	}
	if depth >= model.DepthDeep {
		facts.Complexity = cyclomatic(text, model.LanguageJavaScript)
	}
	return facts
}

func (e *jsExtractor) extractFunctions(text string, lines []string, offsets []int, spans []classSpan, module string, depth model.Depth) []model.Function {
	var funcs []model.Function
	seen := map[int]bool{} // line index -> already captured

	add := func(i int, name, params, class string) {
		if seen[i] {
			return
		}
		seen[i] = true
		fn := model.Function{
			Name:     name,
			Package:  module,
			Class:    class,
			Line:     i + 1,
			Language: model.LanguageJavaScript,
		}
		if class != "" {
			fn.FQN = model.Qualify(module, class+"."+name)
		} else {
			fn.FQN = model.Qualify(module, name)
		}
		if depth >= model.DepthMedium {
			fn.Params = parseParams(params)
		}
		if depth >= model.DepthDeep {
			body := braceBody(text, offsets[i])
			fn.Complexity = cyclomatic(body, model.LanguageJavaScript)
		}
		funcs = append(funcs, fn)
	}

	for i, line := range lines {
		if m := jsFunctionRe.FindStringSubmatch(line); m != nil {
			add(i, m[1], m[2], containingClass(i, spans))
			continue
		}
		if m := jsArrowRe.FindStringSubmatch(line); m != nil {
			add(i, m[1], m[2], "")
			continue
		}
		if m := jsArrowOneRe.FindStringSubmatch(line); m != nil {
			add(i, m[1], m[2], "")
			continue
		}
		// shorthand methods only exist inside a class body
		if class := containingClass(i, spans); class != "" {
			if m := jsMethodRe.FindStringSubmatch(line); m != nil {
				if _, deny := jsMethodDenylist[m[1]]; !deny {
					add(i, m[1], m[2], class)
				}
			}
		}
	}
	return funcs
}

func (e *jsExtractor) extractClasses(text string, lines []string, offsets []int, module string, depth model.Depth) []model.Class {
	var classes []model.Class
	for i, line := range lines {
		m := jsClassRe.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		kind := model.KindClass
		if group(line, m, 1) == "interface" {
			kind = model.KindInterface
		}
		cls := model.Class{
			Name:    group(line, m, 2),
			FQN:     model.Qualify(module, group(line, m, 2)),
			Package: module,
			Line:    i + 1,
			Kind:    kind,
		}
		if depth >= model.DepthMedium {
			if super := group(line, m, 3); super != "" {
				cls.Supertypes = []string{super}
			}
		}
		if depth >= model.DepthDeep {
			body := braceBody(text, offsets[i]+m[1])
			cls.MethodCount = countJSMethods(body)
			cls.PropertyCount = len(jsPropertyRe.FindAllString(body, -1))
		}
		classes = append(classes, cls)
	}
	return classes
}

func (e *jsExtractor) extractCalls(lines []string, declared map[int]string) []rawCall {
	var raw []rawCall
	for i, line := range lines {
		lineNo := i + 1

		for _, m := range jsDirectCallRe.FindAllStringSubmatchIndex(line, -1) {
			start := m[2]
			if start > 0 && line[start-1] == '.' {
				continue
			}
			if precededBy(line, start, "function") || precededBy(line, start, "new") {
				continue
			}
			callee := line[m[2]:m[3]]
			if declared[lineNo] == callee {
				continue
			}
			if _, deny := jsCallDenylist[callee]; deny {
				continue
			}
			raw = append(raw, rawCall{callee: callee, callType: model.CallDirect, line: lineNo})
		}

		for _, m := range jsMethodCallRe.FindAllStringSubmatchIndex(line, -1) {
			receiver := line[m[2]:m[3]]
			callee := line[m[4]:m[5]]
			if _, deny := jsCallDenylist[receiver]; deny {
				continue
			}
			if _, deny := jsCallDenylist[callee]; deny {
				continue
			}
			raw = append(raw, rawCall{callee: callee, callType: model.CallMethod, line: lineNo})
		}

		for _, m := range jsNewCallRe.FindAllStringSubmatchIndex(line, -1) {
			callee := line[m[2]:m[3]]
			raw = append(raw, rawCall{callee: callee, callType: model.CallConstructor, line: lineNo})
		}
	}
	return raw
}

func extractJSImports(text string) []model.Import {
	var imports []model.Import
	for _, m := range jsES6ImportRe.FindAllStringSubmatch(text, -1) {
		imp := model.Import{Path: m[2]}
		// a bare default import doubles as an alias for resolution
		if clause := strings.TrimSpace(m[1]); clause != "" && !strings.ContainsAny(clause, "{},*") {
			imp.Alias = clause
		}
		imports = append(imports, imp)
	}
	for _, m := range jsBareImport.FindAllStringSubmatch(text, -1) {
		imports = append(imports, model.Import{Path: m[1]})
	}
	for _, m := range jsRequireRe.FindAllStringSubmatch(text, -1) {
		imports = append(imports, model.Import{Path: m[1]})
	}
	return imports
}

func countJSMethods(body string) int {
	count := 0
	for _, line := range strings.Split(body, "\n") {
		if m := jsMethodRe.FindStringSubmatch(line); m != nil {
			if _, deny := jsMethodDenylist[m[1]]; !deny {
				count++
			}
		}
	}
	return count
}
