package generator

import (
	"context"
	"errors"
	"fmt"
	"os"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/mpataki/foundry/internal/models"
	"github.com/mpataki/foundry/internal/stage"
)

// LuaGenerator runs a user script that defines generate(request) and
// returns a table mapping paths to file contents. Each call gets a fresh
// sandboxed state, so identical requests produce identical results.
//
// The script sees the request as a table with requirement, language,
// project, iteration, files (path -> content) and errors (a list of
// {stage, kind, file, detail}). It may call log(message) and fail(reason);
// fail ends the session.
type LuaGenerator struct {
	name   string
	source string
	logger *zap.Logger
}

func NewLua(scriptPath string, logger *zap.Logger) (*LuaGenerator, error) {
	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return NewLuaFromSource(scriptPath, string(script), logger), nil
}

func NewLuaFromSource(name, source string, logger *zap.Logger) *LuaGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LuaGenerator{name: name, source: source, logger: logger.Named("lua")}
}

var errScriptFailed = errors.New("script called fail")

// Generate implements stage.Generator.
func (g *LuaGenerator) Generate(ctx context.Context, req stage.GenerateRequest) (models.FileSet, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // Don't load any libraries by default
	})
	defer L.Close()
	L.SetContext(ctx)

	openSafeLibs(L)

	var failReason string
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		g.logger.Info(L.CheckString(1), zap.String("script", g.name))
		return 0
	}))
	L.SetGlobal("fail", L.NewFunction(func(L *lua.LState) int {
		failReason = L.OptString(1, "generation failed")
		L.RaiseError("fail: %s", failReason)
		return 0
	}))

	if err := L.DoString(g.source); err != nil {
		return nil, fmt.Errorf("%w: failed to load script %s: %v", models.ErrGenerationFault, g.name, err)
	}

	generate := L.GetGlobal("generate")
	if generate.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: script %s must define a 'generate' function", models.ErrGenerationFault, g.name)
	}

	L.Push(generate)
	L.Push(requestTable(L, req))
	if err := L.PCall(1, 1, nil); err != nil {
		if failReason != "" {
			return nil, fmt.Errorf("%w: %s: %s", models.ErrGenerationFault, errScriptFailed, failReason)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("generate failed: %w", err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("generate must return a table of files, got %s", ret.Type())
	}

	files := models.FileSet{}
	var convErr error
	tbl.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		path, ok := k.(lua.LString)
		if !ok {
			convErr = fmt.Errorf("file table keys must be strings, got %s", k.Type())
			return
		}
		content, ok := v.(lua.LString)
		if !ok {
			convErr = fmt.Errorf("content of %s must be a string, got %s", string(path), v.Type())
			return
		}
		convErr = files.Add(string(path), string(content))
	})
	if convErr != nil {
		return nil, convErr
	}
	return files, nil
}

// openSafeLibs loads only the safe standard libraries
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	// Remove dangerous base functions
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil) // Use log() instead

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Remove non-deterministic math functions
	math := L.GetGlobal("math")
	if tbl, ok := math.(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

func requestTable(L *lua.LState, req stage.GenerateRequest) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "requirement", lua.LString(req.Requirement))
	L.SetField(tbl, "language", lua.LString(req.Language))
	L.SetField(tbl, "project", lua.LString(req.ProjectName))
	L.SetField(tbl, "iteration", lua.LNumber(req.Iteration))

	files := L.NewTable()
	for _, p := range req.CurrentFiles.Paths() {
		L.SetField(files, p, lua.LString(req.CurrentFiles[p].Content))
	}
	L.SetField(tbl, "files", files)

	errs := L.NewTable()
	for i, e := range req.ErrorContext {
		entry := L.NewTable()
		L.SetField(entry, "stage", lua.LString(e.Stage))
		L.SetField(entry, "kind", lua.LString(e.IssueKind))
		L.SetField(entry, "file", lua.LString(e.FilePath))
		L.SetField(entry, "detail", lua.LString(e.Detail))
		L.SetTable(errs, lua.LNumber(i+1), entry)
	}
	L.SetField(tbl, "errors", errs)
	return tbl
}
