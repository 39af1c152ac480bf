package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"

	"github.com/harun/biomni/pkg/invoker"
	"github.com/harun/biomni/pkg/sandbox"
)

// Marker lines printed by the import probe ahead of its JSON line
const (
	MarkerSuccess = "MARKER_SUCCESS"
	MarkerError   = "MARKER_ERROR"
)

// ProbeResult describes an importable agent
type ProbeResult struct {
	// Method is the entry method the agent exposes
	Method string
	// Version is the installed package version, if known
	Version string
}

var probeProgram = template.Must(template.New("probe").Funcs(template.FuncMap{
	"py": func(v any) (string, error) {
		data, err := json.Marshal(v)
		return string(data), err
	},
}).Parse(`import importlib
import inspect
import json
import sys

AGENT_IMPORT = {{py .AgentImport}}
AGENT_METHOD = {{py .AgentMethod}}
CANDIDATES = {{py .Candidates}}


def has_method(target, name):
    if inspect.isclass(target):
        return any(name in vars(k) for k in target.__mro__ if k is not object)
    return callable(getattr(target, name, None))


def version(module_path):
    root = module_path.split(".")[0]
    try:
        from importlib import metadata
        return metadata.version(root)
    except Exception:
        pass
    return str(getattr(sys.modules.get(root), "__version__", ""))


try:
    module_path, _, attr = AGENT_IMPORT.partition(":")
    module = importlib.import_module(module_path)
    target = getattr(module, attr) if attr else module
    names = [AGENT_METHOD] if AGENT_METHOD else []
    names += [n for n in CANDIDATES if n not in names]
    method = next((n for n in names if has_method(target, n)), "")
    if not method:
        raise AttributeError("agent exposes none of: " + ", ".join(names))
    print({{py .Success}})
    print(json.dumps({"ok": True, "method": method, "version": version(module_path)}))
except Exception as exc:
    print({{py .Error}})
    print(json.dumps({"ok": False, "error": str(exc), "error_type": type(exc).__name__}))
    sys.exit(1)
`))

// ImportProbe checks in a short-lived interpreter that the agent imports
type ImportProbe struct {
	Executor    sandbox.Executor
	Interpreter []string
	PythonPath  string
	AgentImport string
	AgentMethod string
	Timeout     time.Duration
	Lookup      func(string) (string, bool)
}

// Run executes the probe. The interpreter is never left running.
func (p *ImportProbe) Run(ctx context.Context) (*ProbeResult, error) {
	pkg, _, _ := strings.Cut(p.AgentImport, ":")
	if pkg == "" {
		return nil, &ConfigurationError{Variable: "BIOMNI_AGENT_IMPORT", Reason: "has no module path"}
	}
	if len(p.Interpreter) == 0 {
		return nil, &ConfigurationError{Variable: "BIOMNI_PYTHON", Reason: "is empty"}
	}

	var program bytes.Buffer
	err := probeProgram.Execute(&program, map[string]any{
		"AgentImport": p.AgentImport,
		"AgentMethod": p.AgentMethod,
		"Candidates":  invoker.MethodCandidates,
		"Success":     MarkerSuccess,
		"Error":       MarkerError,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render import probe: %w", err)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	res, err := p.Executor.Execute(ctx, sandbox.ExecuteRequest{
		Command: p.Interpreter[0],
		Args:    p.Interpreter[1:],
		Env:     p.environment(),
		Stdin:   program.Bytes(),
		Timeout: timeout,
	})
	switch {
	case errors.Is(err, sandbox.ErrStartFailed):
		return nil, &ImportError{
			Package: pkg,
			Detail:  err.Error(),
			Hint:    "install python3 or set BIOMNI_PYTHON",
		}
	case errors.Is(err, sandbox.ErrExecutionTimeout):
		return nil, &ConfigurationError{
			Variable: "BIOMNI_AGENT_IMPORT",
			Reason:   fmt.Sprintf("import did not finish within %s", timeout),
		}
	case err != nil:
		return nil, err
	}

	return parseProbe(pkg, string(res.Stdout), string(res.Stderr))
}

func (p *ImportProbe) environment() map[string]string {
	lookup := p.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	env := map[string]string{"PYTHONIOENCODING": "utf-8"}
	for _, name := range []string{"PATH", "HOME", "LANG", "PYTHONPATH"} {
		if v, ok := lookup(name); ok {
			env[name] = v
		}
	}
	if p.PythonPath != "" {
		if existing := env["PYTHONPATH"]; existing != "" {
			env["PYTHONPATH"] = p.PythonPath + string(os.PathListSeparator) + existing
		} else {
			env["PYTHONPATH"] = p.PythonPath
		}
	}
	return env
}

// parseProbe reads the JSON line following the last marker
func parseProbe(pkg, stdout, stderr string) (*ProbeResult, error) {
	lines := strings.Split(stdout, "\n")
	body := ""
	for i := len(lines) - 1; i >= 0; i-- {
		marker := strings.TrimSpace(lines[i])
		if marker != MarkerSuccess && marker != MarkerError {
			continue
		}
		if i+1 < len(lines) {
			body = strings.TrimSpace(lines[i+1])
		}
		break
	}

	if body == "" || !gjson.Valid(body) {
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = "probe produced no result"
		}
		return nil, &ImportError{Package: pkg, Detail: lastLine(detail), Hint: installHint(pkg)}
	}

	doc := gjson.Parse(body)
	if doc.Get("ok").Bool() {
		return &ProbeResult{
			Method:  doc.Get("method").String(),
			Version: doc.Get("version").String(),
		}, nil
	}

	errType := doc.Get("error_type").String()
	detail := doc.Get("error").String()
	if errType == "ImportError" || errType == "ModuleNotFoundError" {
		return nil, &ImportError{Package: pkg, Detail: detail, Hint: installHint(pkg)}
	}
	return nil, &ConfigurationError{
		Variable: "BIOMNI_AGENT_IMPORT",
		Reason:   fmt.Sprintf("is not usable: %s: %s", errType, detail),
	}
}

func installHint(pkg string) string {
	return "pip install " + strings.Split(pkg, ".")[0]
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
