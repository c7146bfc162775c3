package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

const kotlinFixture = `package com.acme.billing

import com.acme.util.format
import com.acme.store.*
import com.acme.net.Client as NetClient

class Invoice(val id: String) : Document, Printable {
    fun total(items: List<Item>): Int {
        var sum = 0
        for (item in items) {
            if (item.valid) {
                sum += item.price
            }
        }
        return sum
    }

    fun render(): String {
        return format(total(emptyList()))
    }
}

object InvoiceFactory {
    fun create(): Invoice {
        val invoice = Invoice("x")
        invoice.let { println(it) }
        return invoice
    }
}

fun standalone(x: Int): Int = x + 1
`

func kotlinExtract(t *testing.T, depth model.Depth) Facts {
	t.Helper()
	ex, err := ForLanguage(model.LanguageKotlin)
	require.NoError(t, err)
	return ex.Extract(kotlinFixture, "", depth)
}

func functionFQNs(facts Facts) []string {
	fqns := make([]string, 0, len(facts.Functions))
	for _, fn := range facts.Functions {
		fqns = append(fqns, fn.FQN)
	}
	return fqns
}

func TestKotlinExtract_Basic(t *testing.T) {
	facts := kotlinExtract(t, model.DepthBasic)

	assert.Equal(t, "com.acme.billing", facts.Package)
	assert.Equal(t, []string{
		"com.acme.billing.Invoice.total",
		"com.acme.billing.Invoice.render",
		"com.acme.billing.InvoiceFactory.create",
		"com.acme.billing.standalone",
	}, functionFQNs(facts))

	require.Len(t, facts.Classes, 2)
	assert.Equal(t, model.KindClass, facts.Classes[0].Kind)
	assert.Equal(t, "com.acme.billing.Invoice", facts.Classes[0].FQN)
	assert.Equal(t, model.KindObject, facts.Classes[1].Kind)

	// call, import, and signature detail starts at medium depth
	assert.Empty(t, facts.Calls)
	assert.Empty(t, facts.Imports)
	assert.Empty(t, facts.Functions[0].Params)
}

func TestKotlinExtract_Medium(t *testing.T) {
	facts := kotlinExtract(t, model.DepthMedium)

	require.Len(t, facts.Imports, 3)
	assert.Equal(t, model.Import{Path: "com.acme.util.format"}, facts.Imports[0])
	assert.Equal(t, model.Import{Path: "com.acme.store", Wildcard: true}, facts.Imports[1])
	assert.Equal(t, model.Import{Path: "com.acme.net.Client", Alias: "NetClient"}, facts.Imports[2])

	total := facts.Functions[0]
	assert.Equal(t, []string{"items"}, total.Params)
	assert.Equal(t, "Int", total.ReturnType)

	assert.Equal(t, []string{"Document", "Printable"}, facts.Classes[0].Supertypes)

	byKey := map[string]model.CallType{}
	for _, c := range facts.Calls {
		byKey[c.CallerFQN+"->"+c.Callee+":"+string(c.Type)] = c.Type
	}
	assert.Contains(t, byKey, "com.acme.billing.Invoice.render->format:direct")
	assert.Contains(t, byKey, "com.acme.billing.Invoice.render->total:direct")
	assert.Contains(t, byKey, "com.acme.billing.InvoiceFactory.create->Invoice:constructor")
	assert.Contains(t, byKey, "com.acme.billing.InvoiceFactory.create->let:scope_function")

	// println is denylisted, and the class-header constructor has no
	// containing function so it is dropped
	assert.NotContains(t, byKey, "com.acme.billing.InvoiceFactory.create->println:direct")
}

func TestKotlinExtract_Deep(t *testing.T) {
	facts := kotlinExtract(t, model.DepthDeep)

	total := facts.Functions[0]
	assert.Equal(t, 3, total.Complexity, "one for, one if, plus base")
	assert.Equal(t, 1, facts.Functions[1].Complexity)

	invoice := facts.Classes[0]
	assert.Equal(t, 2, invoice.MethodCount)
	assert.Equal(t, 1, invoice.PropertyCount)

	assert.Greater(t, facts.Complexity, 0)
}

func TestKotlinExtract_DepthMonotonicity(t *testing.T) {
	basic := kotlinExtract(t, model.DepthBasic)
	deep := kotlinExtract(t, model.DepthDeep)

	deepFQNs := map[string]bool{}
	for _, fqn := range functionFQNs(deep) {
		deepFQNs[fqn] = true
	}
	for _, fqn := range functionFQNs(basic) {
		assert.True(t, deepFQNs[fqn], "deep output must contain %s", fqn)
	}
	assert.GreaterOrEqual(t, len(deep.Classes), len(basic.Classes))
}

func TestKotlinExtract_NoPackageDefaults(t *testing.T) {
	ex, err := ForLanguage(model.LanguageKotlin)
	require.NoError(t, err)

	facts := ex.Extract("fun f() {}\n", "", model.DepthBasic)
	assert.Equal(t, model.DefaultPackage, facts.Package)
	require.Len(t, facts.Functions, 1)
	assert.Equal(t, "default.f", facts.Functions[0].FQN)

	hinted := ex.Extract("fun f() {}\n", "scripts.build", model.DepthBasic)
	assert.Equal(t, "scripts.build", hinted.Package)
}

func TestKotlinExtract_ExtensionFunction(t *testing.T) {
	ex, _ := ForLanguage(model.LanguageKotlin)
	facts := ex.Extract("package p\n\nfun String.shout(): String = this.uppercase()\n", "", model.DepthBasic)

	require.Len(t, facts.Functions, 1)
	assert.Equal(t, "p.String.shout", facts.Functions[0].FQN)
	assert.Equal(t, "String", facts.Functions[0].Class)
}

func TestKotlinExtract_DSLBlocks(t *testing.T) {
	src := `package agents

fun build() {
    spiceAgent {
        prompt = "hello"
    }
    orderChain {
    }
}
`
	ex, _ := ForLanguage(model.LanguageKotlin)
	facts := ex.Extract(src, "", model.DepthMedium)

	assert.True(t, facts.IsDSL)
	types := make([]string, 0, len(facts.DSLBlocks))
	for _, b := range facts.DSLBlocks {
		types = append(types, b.Type)
	}
	assert.Contains(t, types, "spiceAgent")
	assert.Contains(t, types, "orderChain")
}

func TestKotlinExtract_EnumAndInterface(t *testing.T) {
	src := `package p

interface Shape {
    fun area(): Double
}

enum class Color {
    RED, GREEN
}
`
	ex, _ := ForLanguage(model.LanguageKotlin)
	facts := ex.Extract(src, "", model.DepthBasic)

	require.Len(t, facts.Classes, 2)
	assert.Equal(t, model.KindInterface, facts.Classes[0].Kind)
	assert.Equal(t, model.KindEnum, facts.Classes[1].Kind)
}
