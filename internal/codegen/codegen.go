// Package codegen emits ahead-of-time Go source for the leaves of a chunk
// tree. Every leaf becomes a function over a Frame with the same
// semantics as the interpreter; structurally identical leaves share one
// function.
package codegen

import (
	"bytes"
	"fmt"

	"github.com/dave/jennifer/jen"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/ir"
)

// Options controls code generation.
type Options struct {
	// Package is the package clause of the emitted file.
	// Default: "kernels".
	Package string

	// SkipValidation disables type-checking of the emitted source.
	SkipValidation bool
}

// Result contains the generated code.
type Result struct {
	Code      string
	Leaves    int
	Functions int
}

// Generate emits Go source for every leaf of t.
func Generate(p *ir.Program, t *chunk.Tree, opts Options) (*Result, error) {
	if t == nil || t.Program != p {
		return nil, fmt.Errorf("codegen: tree does not belong to the program")
	}
	pkg := opts.Package
	if pkg == "" {
		pkg = "kernels"
	}

	f := jen.NewFile(pkg)
	f.HeaderComment("Code generated by vstack emit. DO NOT EDIT.")

	f.Comment("Fingerprint identifies the program these leaves were generated from.")
	f.Const().Id("Fingerprint").Op("=").Lit(ir.Fingerprint(p))

	f.Comment("Frame is the state a leaf runs against. Src and Dst are ordinals")
	f.Comment("into Sources and Dests; Skip is set when a false If closes after")
	f.Comment("the leaf.")
	f.Type().Id("Frame").Struct(
		jen.Id("Stack").Index().Float64(),
		jen.Id("Sources").Index().Float64(),
		jen.Id("Dests").Index().Float64(),
		jen.Id("Src").Int(),
		jen.Id("Dst").Int(),
		jen.Id("Cond").Bool(),
		jen.Id("Skip").Int(),
	)

	f.Comment("Leaf is one generated leaf and the tape range it covers.")
	f.Type().Id("Leaf").Struct(
		jen.Id("Start").Int(),
		jen.Id("End").Int(),
		jen.Id("Run").Func().Params(jen.Op("*").Id("Frame")),
	)

	g := &generator{program: p, names: make(map[string]string)}
	var entries []jen.Code
	leaves := t.Leaves()
	for _, id := range leaves {
		n := t.Node(id)
		name := g.function(f, n)
		entries = append(entries, jen.Values(jen.Dict{
			jen.Id("Start"): jen.Lit(n.Chunk.Commands.Start),
			jen.Id("End"):   jen.Lit(n.Chunk.Commands.End),
			jen.Id("Run"):   jen.Id(name),
		}))
	}

	f.Comment("Leaves lists the leaves in execution order.")
	f.Var().Id("Leaves").Op("=").Index().Id("Leaf").Custom(jen.Options{
		Open:      "{",
		Close:     "}",
		Separator: ",",
		Multi:     true,
	}, entries...)

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fmt.Errorf("codegen: render: %w", err)
	}
	code := buf.String()
	if !opts.SkipValidation {
		if err := Validate(code); err != nil {
			return nil, err
		}
	}
	return &Result{Code: code, Leaves: len(leaves), Functions: len(g.names)}, nil
}

type generator struct {
	program *ir.Program
	// names maps a code fingerprint to its emitted function.
	names map[string]string
}

// function emits the function for n unless an identical one exists and
// returns its name.
func (g *generator) function(f *jen.File, n *chunk.Node) string {
	code := n.Chunk.Code
	key := ir.CodeFingerprint(code)
	if name, ok := g.names[key]; ok {
		return name
	}
	name := fmt.Sprintf("leaf%d", n.ID)
	g.names[key] = name

	var body []jen.Code
	if usesStack(code) {
		body = append(body, jen.Id("s").Op(":=").Id("f").Dot("Stack"))
	}
	jumps := n.Chunk.Jumps
	if len(jumps) != len(code) {
		jumps = chunk.BuildJumps(code)
	}
	body = append(body, g.block(code, jumps, 0, len(code))...)

	f.Commentf("%s runs tape range %s.", name, n.Chunk.Commands)
	f.Func().Id(name).Params(jen.Id("f").Op("*").Id("Frame")).Block(body...)
	return name
}

func usesStack(code []ir.Instruction) bool {
	for _, in := range code {
		switch in.Op {
		case ir.OpBlank, ir.OpComment, ir.OpIf, ir.OpEndIf, ir.OpIncrementDepth, ir.OpDecrementDepth:
		default:
			return true
		}
	}
	return false
}

func slot(i int32) *jen.Statement { return jen.Id("s").Index(jen.Lit(int(i))) }

func frame(field string) *jen.Statement { return jen.Id("f").Dot(field) }

// skip advances the cursors past a skipped body.
func skip(srcs, dsts int) []jen.Code {
	var out []jen.Code
	if srcs > 0 {
		out = append(out, frame("Src").Op("+=").Lit(srcs))
	}
	if dsts > 0 {
		out = append(out, frame("Dst").Op("+=").Lit(dsts))
	}
	return out
}

// block emits code[from:to]. Matched Ifs become if/else statements; an
// If that closes after the leaf becomes an early return that leaves the
// pending skip depth in the frame.
func (g *generator) block(code []ir.Instruction, jumps []chunk.Jump, from, to int) []jen.Code {
	var out []jen.Code
	for i := from; i < to; i++ {
		in := code[i]
		t, s := in.Target, in.Source
		switch in.Op {
		case ir.OpBlank, ir.OpEndIf, ir.OpIncrementDepth, ir.OpDecrementDepth:
		case ir.OpComment:
			if text := g.program.Comment(in); text != "" {
				out = append(out, jen.Comment(text))
			}
		case ir.OpZero:
			out = append(out, slot(t).Op("=").Lit(0.0))
		case ir.OpCopyTo:
			out = append(out, slot(t).Op("=").Add(slot(s)))
		case ir.OpNextSource:
			out = append(out,
				slot(t).Op("=").Add(frame("Sources")).Index(frame("Src")),
				frame("Src").Op("++"),
			)
		case ir.OpNextDestination:
			out = append(out,
				frame("Dests").Index(frame("Dst")).Op("=").Add(slot(s)),
				frame("Dst").Op("++"),
			)
		case ir.OpMultiplyBy:
			out = append(out, slot(t).Op("*=").Add(slot(s)))
		case ir.OpIncrementBy:
			out = append(out, slot(t).Op("+=").Add(slot(s)))
		case ir.OpDecrementBy:
			out = append(out, slot(t).Op("-=").Add(slot(s)))
		case ir.OpEqualsOther:
			out = append(out, frame("Cond").Op("=").Add(slot(t)).Op("==").Add(slot(s)))
		case ir.OpNotEqualsOther:
			out = append(out, frame("Cond").Op("=").Add(slot(t)).Op("!=").Add(slot(s)))
		case ir.OpGreaterThan:
			out = append(out, frame("Cond").Op("=").Add(slot(t)).Op(">").Add(slot(s)))
		case ir.OpLessThan:
			out = append(out, frame("Cond").Op("=").Add(slot(t)).Op("<").Add(slot(s)))
		case ir.OpEqualsValue:
			out = append(out, frame("Cond").Op("=").Add(slot(t)).Op("==").Lit(float64(s)))
		case ir.OpNotEqualsValue:
			out = append(out, frame("Cond").Op("=").Add(slot(t)).Op("!=").Lit(float64(s)))
		case ir.OpIf:
			j := jumps[i]
			if j.Match < 0 {
				guard := append(skip(j.Sources, j.Destinations),
					frame("Skip").Op("=").Lit(j.Open),
					jen.Return(),
				)
				out = append(out, jen.If(jen.Op("!").Add(frame("Cond"))).Block(guard...))
				continue
			}
			stmt := jen.If(frame("Cond")).Block(g.block(code, jumps, i+1, j.Match)...)
			if cursors := skip(j.Sources, j.Destinations); len(cursors) > 0 {
				stmt.Else().Block(cursors...)
			}
			out = append(out, stmt)
			i = j.Match
		}
	}
	return out
}
