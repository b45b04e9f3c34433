// Package parser implements Calc's hand-written precedence-climbing
// parser: a single token of lookahead over a lexer.Lexer, producing
// ast.Expr, ast.Prototype, and ast.Function values.
package parser

import (
	"fmt"

	"calc/internal/ast"
	"calc/internal/calcerr"
	"calc/internal/lexer"
	"calc/internal/token"
)

// binaryPrecedence is the fixed binary-operator precedence table. Higher
// binds tighter. '<' sits below every arithmetic operator, as spec.md's
// design notes describe it: useful in an if-condition, never mandatory.
var binaryPrecedence = map[ast.BinaryOp]int{
	ast.OpLt:  10,
	ast.OpAdd: 100,
	ast.OpSub: 100,
	ast.OpMul: 200,
	ast.OpDiv: 200,
	ast.OpPow: 300,
}

// unaryPrecedence is the precedence at which a leading '+'/'-' binds to
// the primary expression that follows it.
var unaryPrecedence = map[ast.BinaryOp]int{
	ast.OpAdd: 250,
	ast.OpSub: 250,
}

// rightAssociative marks operators that recurse at the same (rather than
// incremented) minimum precedence, so chains of that operator nest to the
// right. Only '^' is right-associative in Calc.
var rightAssociative = map[ast.BinaryOp]bool{
	ast.OpPow: true,
}

// Parser consumes a Lexer one token of lookahead at a time.
type Parser struct {
	lex *lexer.Lexer
	cur token.Token
}

// New creates a Parser over the given source line and primes its
// lookahead token.
func New(input string) *Parser {
	p := &Parser{lex: lexer.New(input)}
	p.next()
	return p
}

// next advances the lookahead token by one.
func (p *Parser) next() {
	p.cur = p.lex.NextToken()
}

// Current returns the parser's current lookahead token, for a driver that
// needs to branch on it (def / extern / ; / expression-start) before
// choosing which Parse entry point to call.
func (p *Parser) Current() token.Token {
	return p.cur
}

// Advance discards the current lookahead token and reads the next one. The
// driver calls this to skip over a token it could not make sense of after
// a parse error, so the REPL can continue with the rest of the line.
func (p *Parser) Advance() {
	p.next()
}

func binaryPrecOf(lit string) int {
	if prec, ok := binaryPrecedence[ast.BinaryOp(lit)]; ok {
		return prec
	}
	return -1
}

// ParseTopLevelExpr wraps the next expression in a Function with prototype
// name ast.AnonName and no parameters.
func (p *Parser) ParseTopLevelExpr() (*ast.Function, error) {
	body, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ast.Function{
		Proto: &ast.Prototype{Name: ast.AnonName},
		Body:  body,
	}, nil
}

// ParseDefinition expects "def", then a prototype, then an expression.
func (p *Parser) ParseDefinition() (*ast.Function, error) {
	p.next() // eat 'def'
	proto, err := p.ParsePrototype()
	if err != nil {
		return nil, err
	}
	body, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ast.Function{Proto: proto, Body: body}, nil
}

// ParseExtern expects "extern", then a prototype.
func (p *Parser) ParseExtern() (*ast.Prototype, error) {
	p.next() // eat 'extern'
	return p.ParsePrototype()
}

// ParsePrototype parses IDENT "(" [IDENT ("," IDENT)*] ")".
func (p *Parser) ParsePrototype() (*ast.Prototype, error) {
	if p.cur.Type != token.IDENT {
		return nil, fmt.Errorf("%w: expected function name in prototype, got %q", calcerr.ErrParse, p.cur.Literal)
	}
	name := p.cur.Literal
	p.next()

	if p.cur.Type != token.LPAREN {
		return nil, fmt.Errorf("%w: expected '(' in prototype", calcerr.ErrParse)
	}
	p.next()

	var params []string
	for p.cur.Type == token.IDENT {
		params = append(params, p.cur.Literal)
		p.next()
		if p.cur.Type == token.RPAREN {
			break
		}
		if p.cur.Type != token.COMMA {
			return nil, fmt.Errorf("%w: expected ',' or ')' in prototype argument list, got %q", calcerr.ErrParse, p.cur.Literal)
		}
		p.next()
	}

	if p.cur.Type != token.RPAREN {
		return nil, fmt.Errorf("%w: expected ')' in prototype", calcerr.ErrParse)
	}
	p.next()

	return &ast.Prototype{Name: name, Params: params}, nil
}

// parseExpression parses a primary followed by zero or more binary
// operators, climbing precedence.
func (p *Parser) parseExpression() (ast.Expr, error) {
	lhs, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return p.parseBinOpRHS(0, lhs)
}

// parsePrimary handles literals, identifier references and calls,
// parenthesized expressions, if/for, and a leading unary sign.
func (p *Parser) parsePrimary() (ast.Expr, error) {
	switch p.cur.Type {
	case token.NUMBER:
		return p.parseNumberExpr(), nil
	case token.IDENT:
		return p.parseIdentifierExpr()
	case token.LPAREN:
		return p.parseParenExpr()
	case token.IF:
		return p.parseIfExpr()
	case token.FOR:
		return p.parseForExpr()
	case token.OPERATOR:
		if p.cur.Literal == "+" || p.cur.Literal == "-" {
			return p.parseUnaryOpRHS()
		}
		return nil, fmt.Errorf("%w: expected a number before %q", calcerr.ErrParse, p.cur.Literal)
	default:
		return nil, fmt.Errorf("%w: unknown token when expecting an expression: %q", calcerr.ErrParse, p.cur.Literal)
	}
}

func (p *Parser) parseNumberExpr() ast.Expr {
	n := &ast.Number{Value: p.cur.Num}
	p.next()
	return n
}

func (p *Parser) parseParenExpr() (ast.Expr, error) {
	p.next() // eat '('
	inner, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.cur.Type != token.RPAREN {
		return nil, fmt.Errorf("%w: expected ')'", calcerr.ErrParse)
	}
	p.next() // eat ')'
	return inner, nil
}

func (p *Parser) parseIdentifierExpr() (ast.Expr, error) {
	name := p.cur.Literal
	p.next()

	if p.cur.Type != token.LPAREN {
		return &ast.Variable{Name: name}, nil
	}

	p.next() // eat '('
	var args []ast.Expr
	if p.cur.Type != token.RPAREN {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.cur.Type == token.RPAREN {
				break
			}
			if p.cur.Type != token.COMMA {
				return nil, fmt.Errorf("%w: expected ')' or ',' in argument list", calcerr.ErrParse)
			}
			p.next()
		}
	}
	p.next() // eat ')'
	return &ast.Call{Callee: name, Args: args}, nil
}

// parseIfExpr parses "if" cond "then" then-expr "else" else-expr.
func (p *Parser) parseIfExpr() (ast.Expr, error) {
	p.next() // eat 'if'
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.cur.Type != token.THEN {
		return nil, fmt.Errorf("%w: expected 'then'", calcerr.ErrParse)
	}
	p.next() // eat 'then'
	thenExpr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.cur.Type != token.ELSE {
		return nil, fmt.Errorf("%w: expected 'else'", calcerr.ErrParse)
	}
	p.next() // eat 'else'
	elseExpr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ast.If{Cond: cond, Then: thenExpr, Else: elseExpr}, nil
}

// parseForExpr parses "for" IDENT "=" start "," end ["," step] "in" body.
// step defaults to 1.0 when omitted.
func (p *Parser) parseForExpr() (ast.Expr, error) {
	p.next() // eat 'for'

	if p.cur.Type != token.IDENT {
		return nil, fmt.Errorf("%w: expected identifier after 'for'", calcerr.ErrParse)
	}
	varName := p.cur.Literal
	p.next()

	if p.cur.Type != token.ASSIGNMENT {
		return nil, fmt.Errorf("%w: expected '=' after for-loop variable", calcerr.ErrParse)
	}
	p.next()

	start, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	if p.cur.Type != token.COMMA {
		return nil, fmt.Errorf("%w: expected ',' after for-loop start value", calcerr.ErrParse)
	}
	p.next()

	end, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	var step ast.Expr = &ast.Number{Value: 1.0}
	if p.cur.Type == token.COMMA {
		p.next()
		step, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}

	if p.cur.Type != token.IN {
		return nil, fmt.Errorf("%w: expected 'in' after for-loop step", calcerr.ErrParse)
	}
	p.next()

	body, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	return &ast.For{Var: varName, Start: start, End: end, Step: step, Body: body}, nil
}

// parseUnaryOpRHS parses a leading '+' or '-' applied to a primary
// expression, at unary precedence 250.
func (p *Parser) parseUnaryOpRHS() (ast.Expr, error) {
	op := ast.BinaryOp(p.cur.Literal)
	tokPrec := unaryPrecedence[op]
	p.next() // eat the sign

	rhs, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	nextPrec := binaryPrecOf(p.cur.Literal)
	if tokPrec < nextPrec {
		rhs, err = p.parseBinOpRHS(tokPrec+1, rhs)
		if err != nil {
			return nil, err
		}
	}

	return &ast.Binary{Op: op, Left: &ast.Number{Value: 0}, Right: rhs}, nil
}

// parseBinOpRHS repeatedly consumes operators at or above minPrec,
// building up a left-associative chain except for right-associative
// operators (only '^'), which recurse at the same minimum precedence
// instead of minPrec+1 so that "a ^ b ^ c" parses as "a ^ (b ^ c)".
func (p *Parser) parseBinOpRHS(minPrec int, lhs ast.Expr) (ast.Expr, error) {
	for {
		if p.cur.Type != token.OPERATOR {
			return lhs, nil
		}
		op := ast.BinaryOp(p.cur.Literal)
		tokPrec := binaryPrecedence[op]
		if tokPrec < minPrec {
			return lhs, nil
		}
		p.next()

		rhs, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}

		nextPrec := binaryPrecOf(p.cur.Literal)
		if tokPrec < nextPrec || (rightAssociative[op] && tokPrec == nextPrec) {
			step := tokPrec + 1
			if rightAssociative[op] {
				step = tokPrec
			}
			rhs, err = p.parseBinOpRHS(step, rhs)
			if err != nil {
				return nil, err
			}
		}

		lhs = &ast.Binary{Op: op, Left: lhs, Right: rhs}
	}
}
