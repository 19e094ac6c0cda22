package servers

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"provider-host/internal/tools"
)

// newCodeServer builds the code-execution provider. Code runs in-process,
// so it is limited to arithmetic expressions.
func newCodeServer(deps Dependencies) (Server, error) {
	schema := tools.Schema{
		Name: "evaluate",
		Description: "Evaluate an arithmetic expression. Supports + - * / % ^, parentheses, " +
			"the constants pi and e, and the functions sqrt abs sin cos tan log ln exp floor ceil round min max.",
		Parameters: []tools.Parameter{
			{Name: "expression", Type: tools.TypeString, Description: "Expression to evaluate", Required: true},
			{Name: "variables", Type: tools.TypeObject, Description: "Numeric values for names used in the expression"},
		},
		Examples: []tools.Example{
			{
				Description: "Simple arithmetic",
				Input:       map[string]interface{}{"expression": "2 + 3 * 4"},
				Output:      map[string]interface{}{"result": 14, "expression": "2 + 3 * 4"},
			},
			{
				Description: "Using variables",
				Input:       map[string]interface{}{"expression": "sqrt(x^2 + y^2)", "variables": map[string]interface{}{"x": 3, "y": 4}},
				Output:      map[string]interface{}{"result": 5},
			},
		},
	}

	tool := tools.NewBaseTool(schema.Name, schema, func(ctx tools.ExecutionContext, input map[string]interface{}) *tools.Result {
		expression := tools.String(input, "expression")

		vars := make(map[string]float64)
		for name, raw := range tools.Object(input, "variables") {
			switch value := raw.(type) {
			case float64:
				vars[name] = value
			case int:
				vars[name] = float64(value)
			default:
				return tools.ErrorResult(tools.CodeInvalidInput, fmt.Sprintf("variable %q is not a number", name))
			}
		}

		result, err := evaluateExpression(expression, vars)
		if err != nil {
			return tools.ErrorResult(tools.CodeInvalidInput, fmt.Sprintf("Failed to evaluate expression: %v", err))
		}
		return tools.SuccessResult(map[string]interface{}{
			"result":     result,
			"expression": expression,
		})
	})

	server, err := newToolServer(string(KindCodeExecution), deps, tool)
	if err != nil {
		return nil, err
	}
	return server, nil
}

// evaluateExpression parses and evaluates expr with a recursive descent
// parser. ^ binds tighter than unary minus and is right associative.
func evaluateExpression(expr string, vars map[string]float64) (float64, error) {
	p := &exprParser{input: expr, vars: vars}
	p.next()

	value, err := p.expression()
	if err != nil {
		return 0, err
	}
	if p.tok.kind != tokEOF {
		return 0, fmt.Errorf("unexpected %q at position %d", p.tok.text, p.tok.pos)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("result is not a finite number")
	}
	return value, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokInvalid
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

type exprParser struct {
	input string
	pos   int
	tok   token
	vars  map[string]float64
	depth int
}

const maxExprDepth = 200

func (p *exprParser) next() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
	start := p.pos
	if p.pos >= len(p.input) {
		p.tok = token{kind: tokEOF, pos: start}
		return
	}

	c := p.input[p.pos]
	switch {
	case c >= '0' && c <= '9' || c == '.':
		for p.pos < len(p.input) && (isDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
			p.pos++
		}
		if p.pos < len(p.input) && (p.input[p.pos] == 'e' || p.input[p.pos] == 'E') {
			save := p.pos
			p.pos++
			if p.pos < len(p.input) && (p.input[p.pos] == '+' || p.input[p.pos] == '-') {
				p.pos++
			}
			if p.pos < len(p.input) && isDigit(p.input[p.pos]) {
				for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
					p.pos++
				}
			} else {
				p.pos = save
			}
		}
		text := p.input[start:p.pos]
		num, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.tok = token{kind: tokInvalid, text: text, pos: start}
			return
		}
		p.tok = token{kind: tokNumber, text: text, num: num, pos: start}
	case unicode.IsLetter(rune(c)) || c == '_':
		for p.pos < len(p.input) && (unicode.IsLetter(rune(p.input[p.pos])) || isDigit(p.input[p.pos]) || p.input[p.pos] == '_') {
			p.pos++
		}
		p.tok = token{kind: tokIdent, text: p.input[start:p.pos], pos: start}
	case strings.ContainsRune("+-*/%^(),", rune(c)):
		p.pos++
		p.tok = token{kind: tokOp, text: string(c), pos: start}
	default:
		p.pos++
		p.tok = token{kind: tokInvalid, text: string(c), pos: start}
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (p *exprParser) isOp(op string) bool {
	return p.tok.kind == tokOp && p.tok.text == op
}

func (p *exprParser) expression() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.tok.text
		p.next()
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

func (p *exprParser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("%") {
		op := p.tok.text
		p.next()
		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		switch op {
		case "*":
			left *= right
		case "/":
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case "%":
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(left, right)
		}
	}
	return left, nil
}

func (p *exprParser) unary() (float64, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxExprDepth {
		return 0, fmt.Errorf("expression nested too deeply")
	}

	if p.isOp("-") || p.isOp("+") {
		negate := p.tok.text == "-"
		p.next()
		value, err := p.unary()
		if err != nil {
			return 0, err
		}
		if negate {
			value = -value
		}
		return value, nil
	}
	return p.power()
}

func (p *exprParser) power() (float64, error) {
	base, err := p.primary()
	if err != nil {
		return 0, err
	}
	if !p.isOp("^") {
		return base, nil
	}
	p.next()
	exponent, err := p.unary()
	if err != nil {
		return 0, err
	}
	return math.Pow(base, exponent), nil
}

func (p *exprParser) primary() (float64, error) {
	tok := p.tok
	switch tok.kind {
	case tokNumber:
		p.next()
		return tok.num, nil

	case tokIdent:
		p.next()
		if p.isOp("(") {
			p.next()
			args, err := p.arguments()
			if err != nil {
				return 0, err
			}
			return callFunction(tok.text, args)
		}
		return p.lookup(tok.text)

	case tokOp:
		if tok.text == "(" {
			p.next()
			p.depth++
			defer func() { p.depth-- }()
			if p.depth > maxExprDepth {
				return 0, fmt.Errorf("expression nested too deeply")
			}
			value, err := p.expression()
			if err != nil {
				return 0, err
			}
			if !p.isOp(")") {
				return 0, fmt.Errorf("missing closing parenthesis")
			}
			p.next()
			return value, nil
		}
	case tokEOF:
		return 0, fmt.Errorf("unexpected end of expression")
	}
	return 0, fmt.Errorf("unexpected %q at position %d", tok.text, tok.pos)
}

func (p *exprParser) arguments() ([]float64, error) {
	var args []float64
	if p.isOp(")") {
		p.next()
		return args, nil
	}
	for {
		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		args = append(args, value)
		if p.isOp(",") {
			p.next()
			continue
		}
		if p.isOp(")") {
			p.next()
			return args, nil
		}
		return nil, fmt.Errorf("expected ',' or ')' at position %d", p.tok.pos)
	}
}

func (p *exprParser) lookup(name string) (float64, error) {
	if value, ok := p.vars[name]; ok {
		return value, nil
	}
	switch strings.ToLower(name) {
	case "pi":
		return math.Pi, nil
	case "e":
		return math.E, nil
	}
	return 0, fmt.Errorf("unknown variable %q", name)
}

var unaryFunctions = map[string]func(float64) float64{
	"sqrt":  math.Sqrt,
	"abs":   math.Abs,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"log":   math.Log10,
	"ln":    math.Log,
	"exp":   math.Exp,
	"floor": math.Floor,
	"ceil":  math.Ceil,
	"round": math.Round,
}

func callFunction(name string, args []float64) (float64, error) {
	name = strings.ToLower(name)
	if fn, ok := unaryFunctions[name]; ok {
		if len(args) != 1 {
			return 0, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
		}
		if (name == "sqrt" && args[0] < 0) || ((name == "log" || name == "ln") && args[0] <= 0) {
			return 0, fmt.Errorf("%s is undefined for %g", name, args[0])
		}
		return fn(args[0]), nil
	}

	switch name {
	case "min", "max":
		if len(args) == 0 {
			return 0, fmt.Errorf("%s expects at least 1 argument", name)
		}
		result := args[0]
		for _, v := range args[1:] {
			if name == "min" {
				result = math.Min(result, v)
			} else {
				result = math.Max(result, v)
			}
		}
		return result, nil
	}
	return 0, fmt.Errorf("unknown function %q", name)
}
