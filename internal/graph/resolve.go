package graph

import (
	"path"
	"sort"
	"strings"

	"github.com/mpataki/foundry/internal/models"
)

type resolution int

const (
	resolved resolution = iota
	external
	unresolved
)

// result of resolving one import against the file set.
type target struct {
	kind  resolution
	files []string
	// packageDirs lists directories used as python packages on the way to
	// the resolved module.
	packageDirs []string
}

type resolver interface {
	ext() []string
	scan(content string) fileScan
	resolve(from string, ref ImportRef) target
}

func resolverFor(files models.FileSet, lang models.Language) resolver {
	switch lang {
	case models.LanguageJava:
		return &jvmResolver{files: files, lang: "java", exts: []string{".java"}, semicolons: true}
	case models.LanguageKotlin:
		return &jvmResolver{files: files, lang: "kotlin", exts: []string{".kt", ".java"}}
	default:
		return &pythonResolver{files: files}
	}
}

var pythonRoots = []string{"", "src/"}

type pythonResolver struct {
	files models.FileSet
}

func (r *pythonResolver) ext() []string { return []string{".py"} }

func (r *pythonResolver) scan(content string) fileScan { return scanPython(content) }

func (r *pythonResolver) resolve(from string, ref ImportRef) target {
	if strings.HasPrefix(ref.Token, ".") {
		return r.resolveRelative(from, ref)
	}

	modPath := strings.ReplaceAll(ref.Token, ".", "/")
	for _, root := range pythonRoots {
		if t, ok := r.resolveUnder(root, modPath, ref.Names); ok {
			return t
		}
	}

	top := strings.SplitN(modPath, "/", 2)[0]
	for _, root := range pythonRoots {
		if r.files.Has(root+top+".py") || r.files.HasDir(root+top) {
			return target{kind: unresolved}
		}
	}
	return target{kind: external}
}

func (r *pythonResolver) resolveRelative(from string, ref ImportRef) target {
	rest := strings.TrimLeft(ref.Token, ".")
	level := len(ref.Token) - len(rest)

	base := path.Dir(from)
	if base == "." {
		base = ""
	}
	for i := 1; i < level; i++ {
		if base == "" {
			return target{kind: unresolved}
		}
		base = path.Dir(base)
		if base == "." {
			base = ""
		}
	}

	root := ""
	if base != "" {
		root = base + "/"
	}
	if rest == "" {
		var t target
		for _, name := range ref.Names {
			if f, ok := r.moduleFile(root + name); ok {
				t.files = append(t.files, f)
			}
		}
		// names defined in the package itself
		if len(t.files) == 0 && base != "" {
			if f, ok := r.moduleFile(base); ok {
				t.files = append(t.files, f)
			}
		}
		if len(t.files) == 0 {
			return target{kind: unresolved}
		}
		return t
	}
	if t, ok := r.resolveUnder(root, strings.ReplaceAll(rest, ".", "/"), ref.Names); ok {
		return t
	}
	return target{kind: unresolved}
}

// resolveUnder resolves modPath below root. Names of a from-import are also
// tried as submodules.
func (r *pythonResolver) resolveUnder(root, modPath string, names []string) (target, bool) {
	var t target
	full := root + modPath
	if f, ok := r.moduleFile(full); ok {
		t.files = append(t.files, f)
	}
	for _, name := range names {
		if name == "*" {
			continue
		}
		if f, ok := r.moduleFile(full + "/" + name); ok {
			t.files = append(t.files, f)
		}
	}
	isNamespace := len(t.files) == 0 && r.files.HasDir(full)
	if len(t.files) == 0 && !isNamespace {
		return t, false
	}

	// Every directory between the root and the module acts as a package.
	segs := strings.Split(modPath, "/")
	dirs := len(segs) - 1
	if !r.files.Has(full+".py") && r.files.HasDir(full) {
		dirs = len(segs)
	}
	for i := 1; i <= dirs; i++ {
		t.packageDirs = append(t.packageDirs, root+strings.Join(segs[:i], "/"))
	}
	return t, true
}

func (r *pythonResolver) moduleFile(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	if r.files.Has(p + ".py") {
		return p + ".py", true
	}
	if r.files.Has(p + "/__init__.py") {
		return p + "/__init__.py", true
	}
	return "", false
}

type jvmResolver struct {
	files      models.FileSet
	lang       string
	exts       []string
	semicolons bool
}

func (r *jvmResolver) ext() []string { return r.exts }

func (r *jvmResolver) scan(content string) fileScan { return scanJVM(content, r.semicolons) }

// roots returns the conventional source roots, most specific first.
func (r *jvmResolver) roots() []string {
	roots := []string{"src/main/" + r.lang + "/", "src/test/" + r.lang + "/"}
	if r.lang != "java" {
		roots = append(roots, "src/main/java/", "src/test/java/")
	}
	return append(roots, "")
}

func (r *jvmResolver) resolve(from string, ref ImportRef) target {
	segs := strings.Split(ref.Token, ".")

	if segs[len(segs)-1] == "*" {
		pkg := segs[:len(segs)-1]
		for _, root := range r.roots() {
			dir := root + strings.Join(pkg, "/")
			if dir == path.Dir(from) {
				// a package is always visible to itself
				return target{}
			}
			if files := r.filesInDir(dir); len(files) > 0 {
				return target{files: files}
			}
		}
		// import static a.b.Type.*
		if len(pkg) > 1 {
			if f, ok := r.classFile(pkg); ok {
				return target{files: []string{f}}
			}
		}
		return r.classify(pkg)
	}

	if f, ok := r.classFile(segs); ok {
		return target{files: []string{f}}
	}
	// static members and nested classes live in the enclosing type's file
	if len(segs) > 2 {
		if f, ok := r.classFile(segs[:len(segs)-1]); ok {
			return target{files: []string{f}}
		}
	}
	return r.classify(segs[:len(segs)-1])
}

func (r *jvmResolver) classFile(segs []string) (string, bool) {
	rel := strings.Join(segs, "/")
	for _, root := range r.roots() {
		for _, ext := range r.exts {
			if r.files.Has(root + rel + ext) {
				return root + rel + ext, true
			}
		}
	}
	return "", false
}

func (r *jvmResolver) filesInDir(dir string) []string {
	var out []string
	prefix := dir + "/"
	for p := range r.files {
		if !strings.HasPrefix(p, prefix) || strings.Contains(p[len(prefix):], "/") {
			continue
		}
		if hasExt(p, r.exts) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// classify decides whether an import that matched no file points into the
// project. The package directory, or the two-segment base package, existing
// under a source root marks it as a project import.
func (r *jvmResolver) classify(pkg []string) target {
	if len(pkg) == 0 {
		return target{kind: unresolved}
	}
	prefixes := []string{strings.Join(pkg, "/")}
	if len(pkg) > 2 {
		prefixes = append(prefixes, strings.Join(pkg[:2], "/"))
	}
	for _, root := range r.roots() {
		for _, p := range prefixes {
			if root == "" && !strings.Contains(p, "/") {
				continue
			}
			if r.files.HasDir(root + p) {
				return target{kind: unresolved}
			}
		}
	}
	return target{kind: external}
}

func hasExt(p string, exts []string) bool {
	for _, e := range exts {
		if strings.HasSuffix(p, e) {
			return true
		}
	}
	return false
}
