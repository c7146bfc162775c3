package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

const pythonFixture = `import os
import numpy as np
from app.models import User, Task as Job
from app.helpers import *

ROOT = "base"

@register
class Pipeline(Base, mixins.Loggable):
    def __init__(self, name):
        self.name = name

    def execute(self, task):
        if task.ready:
            result = run_task(task)
            return result
        return None

@app.route
def handle_request(request):
    with open_session(request) as session:
        data = load(request.body)
    return render(data)

def helper(value):
    return value * 2
`

func pythonExtract(t *testing.T, depth model.Depth) Facts {
	t.Helper()
	ex, err := ForLanguage(model.LanguagePython)
	require.NoError(t, err)
	return ex.Extract(pythonFixture, "app.main", depth)
}

func TestPythonExtract_Basic(t *testing.T) {
	facts := pythonExtract(t, model.DepthBasic)

	assert.Equal(t, "app.main", facts.Package)
	assert.Equal(t, []string{
		"app.main.Pipeline.__init__",
		"app.main.Pipeline.execute",
		"app.main.handle_request",
		"app.main.helper",
	}, functionFQNs(facts))

	require.Len(t, facts.Classes, 1)
	assert.Equal(t, "app.main.Pipeline", facts.Classes[0].FQN)
	assert.Empty(t, facts.Imports)
	assert.Empty(t, facts.Calls)
}

func TestPythonExtract_Medium(t *testing.T) {
	facts := pythonExtract(t, model.DepthMedium)

	require.Len(t, facts.Imports, 5)
	assert.Equal(t, model.Import{Path: "os"}, facts.Imports[0])
	assert.Equal(t, model.Import{Path: "numpy", Alias: "np"}, facts.Imports[1])
	assert.Equal(t, model.Import{Path: "app.models.User"}, facts.Imports[2])
	assert.Equal(t, model.Import{Path: "app.models.Task", Alias: "Job"}, facts.Imports[3])
	assert.Equal(t, model.Import{Path: "app.helpers", Wildcard: true}, facts.Imports[4])

	assert.Equal(t, []string{"Base", "mixins.Loggable"}, facts.Classes[0].Supertypes)
	assert.Equal(t, []string{"self", "task"}, facts.Functions[1].Params)

	type edge struct {
		caller, callee string
		callType       model.CallType
	}
	edges := map[edge]bool{}
	for _, c := range facts.Calls {
		edges[edge{c.CallerFQN, c.Callee, c.Type}] = true
	}

	assert.True(t, edges[edge{"app.main.Pipeline", "register", model.CallDecorator}])
	assert.True(t, edges[edge{"app.main.handle_request", "app.route", model.CallDecorator}])
	assert.True(t, edges[edge{"app.main.Pipeline.execute", "run_task", model.CallAssignment}])
	assert.True(t, edges[edge{"app.main.handle_request", "open_session", model.CallContextManager}])
	assert.True(t, edges[edge{"app.main.handle_request", "render", model.CallReturn}])
}

func TestPythonExtract_Deep(t *testing.T) {
	facts := pythonExtract(t, model.DepthDeep)

	execute := facts.Functions[1]
	assert.Equal(t, "execute", execute.Name)
	assert.Equal(t, 2, execute.Complexity, "single if branch plus base")

	assert.Equal(t, 2, facts.Classes[0].MethodCount)
	assert.Greater(t, facts.Complexity, 0)
}

func TestPythonExtract_ModuleLevelCallsDropped(t *testing.T) {
	src := `def setup():
    return 1

configure_logging()
`
	ex, _ := ForLanguage(model.LanguagePython)
	facts := ex.Extract(src, "app.boot", model.DepthMedium)

	for _, c := range facts.Calls {
		assert.NotEqual(t, "configure_logging", c.Callee,
			"module-level calls have no containing function")
	}
}

func TestPythonExtract_MethodIndentation(t *testing.T) {
	src := `class A:
    def inside(self):
        pass

def outside():
    pass
`
	ex, _ := ForLanguage(model.LanguagePython)
	facts := ex.Extract(src, "m", model.DepthBasic)

	require.Len(t, facts.Functions, 2)
	assert.Equal(t, "m.A.inside", facts.Functions[0].FQN)
	assert.Equal(t, "A", facts.Functions[0].Class)
	assert.Equal(t, "m.outside", facts.Functions[1].FQN)
	assert.Empty(t, facts.Functions[1].Class)
}
