package extract

import (
	"regexp"
	"strings"

	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

var (
	pythonImportRe     = regexp.MustCompile(`^\s*import\s+(.+)$`)
	pythonFromImportRe = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\s+(.+)$`)
	pythonImportItemRe = regexp.MustCompile(`^([\w.*]+)(?:\s+as\s+(\w+))?$`)
	pythonDefRe        = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+(\w+)\s*\(([^)]*)\)`)
	pythonClassRe      = regexp.MustCompile(`^(\s*)class\s+(\w+)\s*(?:\(([^)]*)\))?\s*:`)
	pythonDecoratorRe  = regexp.MustCompile(`^\s*@([\w.]+)`)

	pythonDirectCallRe = regexp.MustCompile(`(\w+)\s*\(`)
	pythonMethodCallRe = regexp.MustCompile(`([\w.]+)\.(\w+)\s*\(`)
	pythonWithCallRe   = regexp.MustCompile(`^\s*with\s+([\w.]+)\s*\(`)
	pythonReturnCallRe = regexp.MustCompile(`^\s*return\s+([\w.]+)\s*\(`)
	pythonAssignCallRe = regexp.MustCompile(`^\s*[\w.]+\s*=\s*([\w.]+)\s*\(`)
)

var pythonCallDenylist = map[string]struct{}{
	"if": {}, "elif": {}, "for": {}, "while": {}, "with": {}, "return": {},
	"yield": {}, "raise": {}, "except": {}, "def": {}, "class": {},
	"lambda": {}, "assert": {}, "print": {}, "len": {}, "range": {},
	"str": {}, "int": {}, "float": {}, "list": {}, "dict": {}, "set": {},
	"tuple": {}, "super": {}, "isinstance": {}, "type": {}, "enumerate": {},
	"zip": {}, "open": {},
}

type pythonExtractor struct{}

func (pythonExtractor) Language() model.Language { return model.LanguagePython }

// Extract scans Python source line by line. Python declares no package of
// its own, so the module name always comes from pkgHint. Methods are
// attributed to their class by indentation tracking.
func (e *pythonExtractor) Extract(text, pkgHint string, depth model.Depth) Facts {
	module := pkgHint
	if module == "" {
		module = model.DefaultPackage
	}
	facts := Facts{Package: module}

	lines := strings.Split(text, "\n")

	var (
		currentClass  string
		classIndent   int
		classBodyLine int // first line index after the class header
		pendingDecs   []rawCall
	)

	closeClass := func(i int) {
		if currentClass == "" {
			return
		}
		for ci := range facts.Classes {
			if facts.Classes[ci].Name == currentClass {
				if depth >= model.DepthDeep {
					facts.Classes[ci].MethodCount = countPythonMethods(lines, classBodyLine, i, classIndent)
				}
				break
			}
		}
		currentClass = ""
	}

	for i, line := range lines {
		trimmed := strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		indent := indentWidth(trimmed)

		if currentClass != "" && indent <= classIndent {
			closeClass(i)
		}

		if m := pythonDecoratorRe.FindStringSubmatch(trimmed); m != nil {
			if depth >= model.DepthMedium {
				pendingDecs = append(pendingDecs, rawCall{callee: m[1], callType: model.CallDecorator, line: i + 1})
			}
			continue
		}

		if m := pythonClassRe.FindStringSubmatch(trimmed); m != nil {
			cls := model.Class{
				Name:    m[2],
				FQN:     model.Qualify(module, m[2]),
				Package: module,
				Line:    i + 1,
				Kind:    model.KindClass,
			}
			if depth >= model.DepthMedium {
				cls.Supertypes = pythonBases(m[3])
				for _, dec := range pendingDecs {
					facts.Calls = append(facts.Calls, model.CallSite{
						CallerFQN: cls.FQN, Callee: dec.callee, Type: dec.callType, Line: dec.line,
					})
				}
			}
			facts.Classes = append(facts.Classes, cls)
			pendingDecs = nil

			currentClass = m[2]
			classIndent = indent
			classBodyLine = i + 1
			continue
		}

		if m := pythonDefRe.FindStringSubmatch(trimmed); m != nil {
			name := m[2]
			class := ""
			if currentClass != "" && indent > classIndent {
				class = currentClass
			}
			fn := model.Function{
				Name:     name,
				Package:  module,
				Class:    class,
				Line:     i + 1,
				Language: model.LanguagePython,
			}
			if class != "" {
				fn.FQN = model.Qualify(module, class+"."+name)
			} else {
				fn.FQN = model.Qualify(module, name)
			}
			if depth >= model.DepthMedium {
				fn.Params = parseParams(m[3])
				for _, dec := range pendingDecs {
					facts.Calls = append(facts.Calls, model.CallSite{
						CallerFQN: fn.FQN, Callee: dec.callee, Type: dec.callType, Line: dec.line,
					})
				}
			}
			if depth >= model.DepthDeep {
				body := pythonBody(lines, i, indent)
				fn.Complexity = cyclomatic(body, model.LanguagePython)
			}
			facts.Functions = append(facts.Functions, fn)
			pendingDecs = nil
			continue
		}

		pendingDecs = nil
	}
	closeClass(len(lines))

	if depth >= model.DepthMedium {
		facts.Imports = extractPythonImports(lines)
		facts.Calls = append(facts.Calls, attributeCalls(e.extractCalls(lines), facts.Functions)...)
	}
	if depth >= model.DepthDeep {
		facts.Complexity = cyclomatic(text, model.LanguagePython)
	}
	return facts
}

// extractCalls collects call sites from indented lines only: a call at
// column zero is module-level code with no containing function.
func (e *pythonExtractor) extractCalls(lines []string) []rawCall {
	var raw []rawCall
	for i, line := range lines {
		if indentWidth(line) == 0 {
			continue
		}
		lineNo := i + 1

		if m := pythonWithCallRe.FindStringSubmatch(line); m != nil {
			raw = append(raw, rawCall{callee: m[1], callType: model.CallContextManager, line: lineNo})
		}
		if m := pythonReturnCallRe.FindStringSubmatch(line); m != nil {
			if _, deny := pythonCallDenylist[m[1]]; !deny {
				raw = append(raw, rawCall{callee: m[1], callType: model.CallReturn, line: lineNo})
			}
		}
		if m := pythonAssignCallRe.FindStringSubmatch(line); m != nil {
			if _, deny := pythonCallDenylist[m[1]]; !deny {
				raw = append(raw, rawCall{callee: m[1], callType: model.CallAssignment, line: lineNo})
			}
		}

		for _, m := range pythonDirectCallRe.FindAllStringSubmatchIndex(line, -1) {
			start := m[2]
			if start > 0 && line[start-1] == '.' {
				continue
			}
			if precededBy(line, start, "def") || precededBy(line, start, "class") {
				continue
			}
			callee := line[m[2]:m[3]]
			if _, deny := pythonCallDenylist[callee]; deny {
				continue
			}
			raw = append(raw, rawCall{callee: callee, callType: model.CallDirect, line: lineNo})
		}

		for _, m := range pythonMethodCallRe.FindAllStringSubmatchIndex(line, -1) {
			callee := line[m[2]:m[5]] // receiver.method, as written
			method := line[m[4]:m[5]]
			if _, deny := pythonCallDenylist[method]; deny {
				continue
			}
			raw = append(raw, rawCall{callee: callee, callType: model.CallMethod, line: lineNo})
		}
	}
	return raw
}

func extractPythonImports(lines []string) []model.Import {
	var imports []model.Import
	for _, line := range lines {
		if m := pythonFromImportRe.FindStringSubmatch(line); m != nil {
			base := m[1]
			for _, item := range strings.Split(m[2], ",") {
				item = strings.TrimSpace(item)
				if item == "*" {
					imports = append(imports, model.Import{Path: base, Wildcard: true})
					continue
				}
				if im := pythonImportItemRe.FindStringSubmatch(item); im != nil {
					imports = append(imports, model.Import{Path: base + "." + im[1], Alias: im[2]})
				}
			}
			continue
		}
		if m := pythonImportRe.FindStringSubmatch(line); m != nil {
			for _, item := range strings.Split(m[1], ",") {
				item = strings.TrimSpace(item)
				if im := pythonImportItemRe.FindStringSubmatch(item); im != nil && !strings.Contains(im[1], "*") {
					imports = append(imports, model.Import{Path: im[1], Alias: im[2]})
				}
			}
		}
	}
	return imports
}

// pythonBases splits a class's base list, dropping keyword arguments such as
// metaclass=... .
func pythonBases(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var bases []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b == "" || strings.Contains(b, "=") {
			continue
		}
		if idx := strings.Index(b, "["); idx >= 0 {
			b = b[:idx]
		}
		bases = append(bases, b)
	}
	return bases
}

// pythonBody returns the indented block following a def header, capped at
// the body window.
func pythonBody(lines []string, defIdx, defIndent int) string {
	var b strings.Builder
	for i := defIdx + 1; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		if indentWidth(line) <= defIndent {
			break
		}
		if b.Len()+len(line) > bodyWindow {
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func countPythonMethods(lines []string, start, end, classIndent int) int {
	count := 0
	for i := start; i < end && i < len(lines); i++ {
		m := pythonDefRe.FindStringSubmatch(lines[i])
		if m != nil && indentWidth(lines[i]) > classIndent {
			count++
		}
	}
	return count
}

func indentWidth(line string) int {
	n := 0
	for n < len(line) && (line[n] == ' ' || line[n] == '\t') {
		n++
	}
	return n
}
