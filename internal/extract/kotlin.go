package extract

import (
	"regexp"
	"strings"

	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

var (
	kotlinPackageRe = regexp.MustCompile(`\bpackage\s+([\w.]+)`)
	kotlinImportRe  = regexp.MustCompile(`\bimport\s+([\w.*]+)(?:\s+as\s+(\w+))?`)
	kotlinFuncRe    = regexp.MustCompile(`\bfun\s+(?:<[^>]*>\s*)?(?:(\w+)\.)?(\w+)\s*\(([^)]*)\)(?:\s*:\s*([^\s{=]+))?`)
	kotlinClassRe   = regexp.MustCompile(`\b(class|interface|object|enum\s+class)\s+(\w+)(?:<[^>]*>)?(?:\s*\([^)]*\))?(?:\s*:\s*([^{]+))?`)
	kotlinContextRe = regexp.MustCompile(`\b(?:class|interface|object)\s+(\w+)`)

	kotlinDirectCallRe = regexp.MustCompile(`(\w+)\s*\(`)
	kotlinMethodCallRe = regexp.MustCompile(`(\w+)\.(\w+)\s*\(`)
	kotlinCtorCallRe   = regexp.MustCompile(`\b([A-Z]\w*)\s*\(`)
	kotlinSafeCallRe   = regexp.MustCompile(`(\w+)\?\.(\w+)\s*\(`)
	kotlinScopeCallRe  = regexp.MustCompile(`\.(let|run|apply|also|with)\s*\{`)
	kotlinBuilderRe    = regexp.MustCompile(`(\w+)\s*\{`)

	kotlinMethodDeclRe   = regexp.MustCompile(`\bfun\s+\w+`)
	kotlinPropertyDeclRe = regexp.MustCompile(`\b(?:val|var)\s+\w+`)
)

// kotlinCallDenylist filters identifiers that look like calls but are
// control flow, declarations, or ubiquitous builtins.
var kotlinCallDenylist = map[string]struct{}{
	"if": {}, "when": {}, "for": {}, "while": {}, "fun": {}, "return": {},
	"throw": {}, "try": {}, "catch": {}, "class": {}, "interface": {},
	"object": {}, "val": {}, "var": {}, "println": {}, "print": {},
	"require": {}, "check": {}, "assert": {}, "super": {}, "this": {},
	"error": {},
}

// dslVocabulary marks files written against fluent builder DSLs; block
// extraction is only attempted when one of these appears in the text.
var dslVocabulary = []string{
	"spiceAgent", "buildAgent", "spiceChain", "tool", "step",
	"memory", "vectorStore", "llm", "prompt", "execute",
	"transform", "handle", "behaviors", "register",
}

var dslSuffixes = []string{"Agent", "Chain", "Builder"}

type kotlinExtractor struct{}

func (kotlinExtractor) Language() model.Language { return model.LanguageKotlin }

func (e *kotlinExtractor) Extract(text, pkgHint string, depth model.Depth) Facts {
	facts := Facts{Package: pkgHint}
	if m := kotlinPackageRe.FindStringSubmatch(text); m != nil {
		facts.Package = m[1]
	}
	if facts.Package == "" {
		facts.Package = model.DefaultPackage
	}

	lines := strings.Split(text, "\n")
	offsets := lineStartOffsets(text)
	spans := classSpans(lines, kotlinContextRe)

	facts.Functions = e.extractFunctions(text, lines, offsets, spans, facts.Package, depth)
	facts.Classes = e.extractClasses(text, lines, offsets, facts.Package, depth)

	if depth >= model.DepthMedium {
		facts.Imports = extractKotlinImports(text)
		facts.Calls = attributeCalls(e.extractCalls(lines), facts.Functions)

		facts.IsDSL = isDSLText(text)
		if facts.IsDSL {
			facts.DSLBlocks = extractDSLBlocks(lines)
		}
	}
	if depth >= model.DepthDeep {
		facts.Complexity = cyclomatic(text, model.LanguageKotlin)
	}
	return facts
}

func (e *kotlinExtractor) extractFunctions(text string, lines []string, offsets []int, spans []classSpan, pkg string, depth model.Depth) []model.Function {
	var funcs []model.Function
	for i, line := range lines {
		m := kotlinFuncRe.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		receiver := group(line, m, 1)
		name := group(line, m, 2)
		class := receiver
		if class == "" {
			class = containingClass(i, spans)
		}

		fn := model.Function{
			Name:     name,
			Package:  pkg,
			Class:    class,
			Line:     i + 1,
			Language: model.LanguageKotlin,
		}
		if class != "" {
			fn.FQN = model.Qualify(pkg, class+"."+name)
		} else {
			fn.FQN = model.Qualify(pkg, name)
		}

		if depth >= model.DepthMedium {
			fn.Params = parseParams(group(line, m, 3))
			fn.ReturnType = group(line, m, 4)
		}
		if depth >= model.DepthDeep {
			body := braceBody(text, offsets[i]+m[1])
			fn.Complexity = cyclomatic(body, model.LanguageKotlin)
		}
		funcs = append(funcs, fn)
	}
	return funcs
}

func (e *kotlinExtractor) extractClasses(text string, lines []string, offsets []int, pkg string, depth model.Depth) []model.Class {
	var classes []model.Class
	for i, line := range lines {
		m := kotlinClassRe.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		kindText := group(line, m, 1)
		name := group(line, m, 2)

		cls := model.Class{
			Name:    name,
			FQN:     model.Qualify(pkg, name),
			Package: pkg,
			Line:    i + 1,
			Kind:    kotlinClassKind(kindText),
		}
		if depth >= model.DepthMedium {
			cls.Supertypes = splitSupertypes(group(line, m, 3))
		}
		if depth >= model.DepthDeep {
			body := braceBody(text, offsets[i]+m[1])
			cls.MethodCount = len(kotlinMethodDeclRe.FindAllString(body, -1))
			cls.PropertyCount = len(kotlinPropertyDeclRe.FindAllString(body, -1))
		}
		classes = append(classes, cls)
	}
	return classes
}

func (e *kotlinExtractor) extractCalls(lines []string) []rawCall {
	var raw []rawCall
	for i, line := range lines {
		lineNo := i + 1

		for _, m := range kotlinDirectCallRe.FindAllStringSubmatchIndex(line, -1) {
			start := m[2]
			if start > 0 && (line[start-1] == '.' || line[start-1] == '?') {
				continue
			}
			if precededBy(line, start, "fun") || precededBy(line, start, "override") {
				continue
			}
			callee := line[m[2]:m[3]]
			if _, deny := kotlinCallDenylist[callee]; deny {
				continue
			}
			raw = append(raw, rawCall{callee: callee, callType: model.CallDirect, line: lineNo})
		}

		for _, m := range kotlinMethodCallRe.FindAllStringSubmatchIndex(line, -1) {
			callee := line[m[4]:m[5]]
			if _, deny := kotlinCallDenylist[callee]; deny {
				continue
			}
			raw = append(raw, rawCall{callee: callee, callType: model.CallMethod, line: lineNo})
		}

		for _, m := range kotlinCtorCallRe.FindAllStringSubmatchIndex(line, -1) {
			callee := line[m[2]:m[3]]
			if _, deny := kotlinCallDenylist[callee]; deny {
				continue
			}
			raw = append(raw, rawCall{callee: callee, callType: model.CallConstructor, line: lineNo})
		}

		for _, m := range kotlinSafeCallRe.FindAllStringSubmatchIndex(line, -1) {
			callee := line[m[4]:m[5]]
			if _, deny := kotlinCallDenylist[callee]; deny {
				continue
			}
			raw = append(raw, rawCall{callee: callee, callType: model.CallSafe, line: lineNo})
		}

		for _, m := range kotlinScopeCallRe.FindAllStringSubmatchIndex(line, -1) {
			callee := line[m[2]:m[3]]
			raw = append(raw, rawCall{callee: callee, callType: model.CallScopeFunction, line: lineNo})
		}
	}
	return raw
}

func kotlinClassKind(kindText string) model.ClassKind {
	switch {
	case strings.HasPrefix(kindText, "enum"):
		return model.KindEnum
	case kindText == "interface":
		return model.KindInterface
	case kindText == "object":
		return model.KindObject
	default:
		return model.KindClass
	}
}

func extractKotlinImports(text string) []model.Import {
	var imports []model.Import
	for _, m := range kotlinImportRe.FindAllStringSubmatch(text, -1) {
		imp := model.Import{Path: m[1], Alias: m[2]}
		if strings.HasSuffix(imp.Path, ".*") {
			imp.Path = strings.TrimSuffix(imp.Path, ".*")
			imp.Wildcard = true
		}
		imports = append(imports, imp)
	}
	return imports
}

func isDSLText(text string) bool {
	for _, kw := range dslVocabulary {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func extractDSLBlocks(lines []string) []model.DSLBlock {
	var blocks []model.DSLBlock
	for i, line := range lines {
		for _, m := range kotlinBuilderRe.FindAllStringSubmatch(line, -1) {
			name := m[1]
			if isDSLBuilderName(name) {
				blocks = append(blocks, model.DSLBlock{Type: name, Line: i + 1})
			}
		}
	}
	return blocks
}

func isDSLBuilderName(name string) bool {
	for _, kw := range dslVocabulary {
		if name == kw {
			return true
		}
	}
	for _, suffix := range dslSuffixes {
		if strings.HasSuffix(name, suffix) && name != suffix {
			return true
		}
	}
	return false
}

// lineStartOffsets maps each line index to its byte offset in the text.
func lineStartOffsets(text string) []int {
	offsets := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// group returns the text of a submatch from FindStringSubmatchIndex output.
func group(s string, m []int, n int) string {
	if m[2*n] < 0 {
		return ""
	}
	return s[m[2*n]:m[2*n+1]]
}
