package invoker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"
)

// Marker lines delimiting the single JSON record printed by the child
const (
	ResultStart = "RESULT_START"
	ResultEnd   = "RESULT_END"
	ErrorStart  = "ERROR_START"
	ErrorEnd    = "ERROR_END"
)

// MethodCandidates are tried in order when no entry method is configured
var MethodCandidates = []string{"go", "run", "process_query", "__call__"}

// ScriptParams is everything the generated program needs
type ScriptParams struct {
	Nonce          string
	Query          string
	Model          string
	DataPath       string
	TimeoutSeconds int
	AgentImport    string
	AgentMethod    string
}

// ScriptBuilder renders the program text executed by the interpreter
type ScriptBuilder func(ScriptParams) (string, error)

var agentProgram = template.Must(template.New("agent").Funcs(template.FuncMap{
	"py": pyLiteral,
}).Parse(`import json
import sys
import traceback

NONCE = {{py .Nonce}}
QUERY = {{py .Query}}
MODEL = {{py .Model}}
DATA_PATH = {{py .DataPath}}
TIMEOUT_SECONDS = {{.TimeoutSeconds}}
AGENT_IMPORT = {{py .AgentImport}}
AGENT_METHOD = {{py .AgentMethod}}
CANDIDATES = {{py .Candidates}}


def emit(start, end, payload):
    payload["nonce"] = NONCE
    line = json.dumps(payload, default=str)
    sys.stdout.write("\n" + start + "\n" + line + "\n" + end + "\n")
    sys.stdout.flush()


def configure():
    try:
        from biomni.config import default_config
    except Exception:
        return
    default_config.llm = MODEL
    default_config.timeout_seconds = TIMEOUT_SECONDS
    default_config.path = DATA_PATH


def load_agent():
    import importlib
    import inspect

    module_path, _, attr = AGENT_IMPORT.partition(":")
    if not module_path:
        raise ImportError("Invalid import path: module is empty")
    module = importlib.import_module(module_path)
    configure()
    target = getattr(module, attr) if attr else module
    if inspect.isclass(target):
        try:
            return target(path=DATA_PATH, llm=MODEL)
        except TypeError:
            return target()
    return target


def resolve(agent):
    names = [AGENT_METHOD] if AGENT_METHOD else []
    names += [name for name in CANDIDATES if name not in names]
    for name in names:
        fn = getattr(agent, name, None)
        if callable(fn):
            return fn
    raise AttributeError(
        "Agent method not found. Set BIOMNI_AGENT_METHOD or expose one of: "
        + ", ".join(CANDIDATES)
    )


def main():
    try:
        agent = load_agent()
        result = resolve(agent)(QUERY)
        if isinstance(result, tuple) and len(result) == 2:
            result = result[1]
        emit({{py .ResultStart}}, {{py .ResultEnd}}, {"success": True, "result": result, "model": MODEL})
        return 0
    except BaseException as exc:
        emit({{py .ErrorStart}}, {{py .ErrorEnd}}, {
            "success": False,
            "error": str(exc),
            "error_type": type(exc).__name__,
            "traceback": traceback.format_exc(),
        })
        return 1


if __name__ == "__main__":
    sys.exit(main())
`))

// BuildAgentScript renders the Python program that imports the agent, runs
// one query and prints the delimited result record.
func BuildAgentScript(p ScriptParams) (string, error) {
	data := struct {
		ScriptParams
		Candidates                                   []string
		ResultStart, ResultEnd, ErrorStart, ErrorEnd string
	}{
		ScriptParams: p,
		Candidates:   MethodCandidates,
		ResultStart:  ResultStart,
		ResultEnd:    ResultEnd,
		ErrorStart:   ErrorStart,
		ErrorEnd:     ErrorEnd,
	}

	var buf bytes.Buffer
	if err := agentProgram.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render agent program: %w", err)
	}
	return buf.String(), nil
}

// pyLiteral encodes a value as JSON, which is a valid Python literal for
// strings and lists of strings.
func pyLiteral(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
