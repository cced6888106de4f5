// Package parser implements a recursive-descent parser over the lexer's
// token stream, producing the ast package's statement and expression types.
package parser

import (
	"strconv"
	"strings"

	"github.com/novadb/novadb/internal/dberr"
	"github.com/novadb/novadb/internal/sql/ast"
	"github.com/novadb/novadb/internal/sql/lexer"
	"github.com/novadb/novadb/internal/value"
)

// Parser consumes a token stream and builds one Statement at a time.
type Parser struct {
	toks []lexer.Token
	pos  int
}

// Parse tokenizes and parses a single SQL statement (the trailing semicolon,
// if present, is optional).
func Parse(src string) (ast.Statement, error) {
	toks, err := lexer.Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	p.skip(lexer.Semicolon)
	if p.cur().Kind != lexer.EOF {
		return nil, dberr.NewParseError(p.cur().Pos, "unexpected trailing input %q", p.cur().Text)
	}
	return stmt, nil
}

func (p *Parser) cur() lexer.Token { return p.toks[p.pos] }
func (p *Parser) peekAt(offset int) lexer.Token {
	idx := p.pos + offset
	if idx >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[idx]
}
func (p *Parser) advance() lexer.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) atKeyword(kw string) bool {
	return p.cur().Kind == lexer.Keyword && p.cur().Text == kw
}

func (p *Parser) skip(kind lexer.Kind) bool {
	if p.cur().Kind == kind {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(kind lexer.Kind, what string) (lexer.Token, error) {
	if p.cur().Kind != kind {
		return lexer.Token{}, dberr.NewParseError(p.cur().Pos, "expected %s, got %q", what, p.cur().Text)
	}
	return p.advance(), nil
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return dberr.NewParseError(p.cur().Pos, "expected %s, got %q", kw, p.cur().Text)
	}
	p.advance()
	return nil
}

func (p *Parser) parseStatement() (ast.Statement, error) {
	switch {
	case p.atKeyword("CREATE"):
		return p.parseCreate()
	case p.atKeyword("DROP"):
		return p.parseDrop()
	case p.atKeyword("USE"):
		p.advance()
		if p.atKeyword("DATABASE") {
			p.advance()
		}
		name, err := p.expect(lexer.Ident, "database name")
		if err != nil {
			return nil, err
		}
		return ast.UseDatabase{Name: name.Text}, nil
	case p.atKeyword("INSERT"):
		return p.parseInsert()
	case p.atKeyword("SELECT"):
		return p.parseSelect()
	case p.atKeyword("UPDATE"):
		return p.parseUpdate()
	case p.atKeyword("DELETE"):
		return p.parseDelete()
	default:
		return nil, dberr.NewParseError(p.cur().Pos, "expected a statement, got %q", p.cur().Text)
	}
}

func (p *Parser) parseCreate() (ast.Statement, error) {
	p.advance() // CREATE
	switch {
	case p.atKeyword("DATABASE"):
		p.advance()
		name, err := p.expect(lexer.Ident, "database name")
		if err != nil {
			return nil, err
		}
		return ast.CreateDatabase{Name: name.Text}, nil
	case p.atKeyword("TABLE"):
		return p.parseCreateTable()
	case p.atKeyword("UNIQUE"):
		p.advance()
		if err := p.expectKeyword("INDEX"); err != nil {
			return nil, err
		}
		return p.parseCreateIndex(true)
	case p.atKeyword("INDEX"):
		return p.parseCreateIndex(false)
	default:
		return nil, dberr.NewParseError(p.cur().Pos, "expected DATABASE, TABLE, or INDEX after CREATE")
	}
}

func (p *Parser) parseCreateTable() (ast.Statement, error) {
	p.advance() // TABLE
	table, err := p.expect(lexer.Ident, "table name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LParen, "("); err != nil {
		return nil, err
	}
	var cols []ast.ColumnDef
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.skip(lexer.Comma) {
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RParen, ")"); err != nil {
		return nil, err
	}
	return ast.CreateTable{Table: table.Text, Columns: cols}, nil
}

func (p *Parser) parseColumnDef() (ast.ColumnDef, error) {
	name, err := p.expect(lexer.Ident, "column name")
	if err != nil {
		return ast.ColumnDef{}, err
	}
	var typ value.ColumnType
	switch {
	case p.atKeyword("INT"):
		typ = value.ColInt
	case p.atKeyword("DOUBLE"):
		typ = value.ColDouble
	case p.atKeyword("STRING"):
		typ = value.ColText
	default:
		return ast.ColumnDef{}, dberr.NewParseError(p.cur().Pos, "expected column type, got %q", p.cur().Text)
	}
	p.advance()
	col := ast.ColumnDef{Name: name.Text, Type: typ}
	for {
		switch {
		case p.atKeyword("NOT"):
			p.advance()
			if err := p.expectKeyword("NULL"); err != nil {
				return ast.ColumnDef{}, err
			}
			col.NotNull = true
		case p.atKeyword("PRIMARY"):
			p.advance()
			if err := p.expectKeyword("KEY"); err != nil {
				return ast.ColumnDef{}, err
			}
			col.PrimaryKey = true
		default:
			return col, nil
		}
	}
}

func (p *Parser) parseCreateIndex(unique bool) (ast.Statement, error) {
	p.advance() // INDEX
	name, err := p.expect(lexer.Ident, "index name")
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("ON"); err != nil {
		return nil, err
	}
	table, err := p.expect(lexer.Ident, "table name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LParen, "("); err != nil {
		return nil, err
	}
	col, err := p.expect(lexer.Ident, "column name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RParen, ")"); err != nil {
		return nil, err
	}
	return ast.CreateIndex{Index: name.Text, Table: table.Text, Column: col.Text, Unique: unique}, nil
}

func (p *Parser) parseDrop() (ast.Statement, error) {
	p.advance() // DROP
	switch {
	case p.atKeyword("DATABASE"):
		p.advance()
		name, err := p.expect(lexer.Ident, "database name")
		if err != nil {
			return nil, err
		}
		return ast.DropDatabase{Name: name.Text}, nil
	case p.atKeyword("TABLE"):
		p.advance()
		ifExists := false
		if p.atKeyword("IF") {
			p.advance()
			if err := p.expectKeyword("EXISTS"); err != nil {
				return nil, err
			}
			ifExists = true
		}
		name, err := p.expect(lexer.Ident, "table name")
		if err != nil {
			return nil, err
		}
		return ast.DropTable{Table: name.Text, IfExists: ifExists}, nil
	case p.atKeyword("INDEX"):
		p.advance()
		name, err := p.expect(lexer.Ident, "index name")
		if err != nil {
			return nil, err
		}
		return ast.DropIndex{Index: name.Text}, nil
	default:
		return nil, dberr.NewParseError(p.cur().Pos, "expected DATABASE, TABLE, or INDEX after DROP")
	}
}

func (p *Parser) parseInsert() (ast.Statement, error) {
	p.advance() // INSERT
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.expect(lexer.Ident, "table name")
	if err != nil {
		return nil, err
	}
	var cols []string
	if p.cur().Kind == lexer.LParen {
		p.advance()
		for {
			c, err := p.expect(lexer.Ident, "column name")
			if err != nil {
				return nil, err
			}
			cols = append(cols, c.Text)
			if p.skip(lexer.Comma) {
				continue
			}
			break
		}
		if _, err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	var rows [][]ast.Expr
	for {
		if _, err := p.expect(lexer.LParen, "("); err != nil {
			return nil, err
		}
		var row []ast.Expr
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			row = append(row, e)
			if p.skip(lexer.Comma) {
				continue
			}
			break
		}
		if _, err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
		rows = append(rows, row)
		if p.skip(lexer.Comma) {
			continue
		}
		break
	}
	return ast.InsertStmt{Table: table.Text, Columns: cols, Rows: rows}, nil
}

func (p *Parser) parseSelect() (ast.Statement, error) {
	p.advance() // SELECT
	var cols []ast.Expr
	for {
		if p.cur().Kind == lexer.Star {
			p.advance()
			cols = append(cols, ast.Star{})
		} else {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			cols = append(cols, e)
		}
		if p.skip(lexer.Comma) {
			continue
		}
		break
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	from, err := p.expect(lexer.Ident, "table name")
	if err != nil {
		return nil, err
	}
	stmt := ast.SelectStmt{Columns: cols, From: from.Text}

	for p.atKeyword("JOIN") || p.atKeyword("INNER") || p.atKeyword("LEFT") ||
		p.atKeyword("RIGHT") || p.atKeyword("FULL") {
		jc, err := p.parseJoinClause()
		if err != nil {
			return nil, err
		}
		stmt.Joins = append(stmt.Joins, jc)
	}

	if p.atKeyword("WHERE") {
		p.advance()
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = w
	}

	if p.atKeyword("GROUP") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, e)
			if p.skip(lexer.Comma) {
				continue
			}
			break
		}
	}

	if p.atKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			dir := ast.Asc
			if p.atKeyword("ASC") {
				p.advance()
			} else if p.atKeyword("DESC") {
				p.advance()
				dir = ast.Desc
			}
			stmt.OrderBy = append(stmt.OrderBy, ast.OrderItem{Expr: e, Direction: dir})
			if p.skip(lexer.Comma) {
				continue
			}
			break
		}
	}

	return stmt, nil
}

func (p *Parser) parseJoinClause() (ast.JoinClause, error) {
	kind := ast.JoinInner
	switch {
	case p.atKeyword("INNER"):
		p.advance()
	case p.atKeyword("LEFT"):
		p.advance()
		kind = ast.JoinLeft
		if p.atKeyword("OUTER") {
			p.advance()
		}
	case p.atKeyword("RIGHT"):
		p.advance()
		kind = ast.JoinRight
		if p.atKeyword("OUTER") {
			p.advance()
		}
	case p.atKeyword("FULL"):
		p.advance()
		kind = ast.JoinFullOuter
		if p.atKeyword("OUTER") {
			p.advance()
		}
	}
	if err := p.expectKeyword("JOIN"); err != nil {
		return ast.JoinClause{}, err
	}
	table, err := p.expect(lexer.Ident, "table name")
	if err != nil {
		return ast.JoinClause{}, err
	}
	if err := p.expectKeyword("ON"); err != nil {
		return ast.JoinClause{}, err
	}
	on, err := p.parseExpr()
	if err != nil {
		return ast.JoinClause{}, err
	}
	return ast.JoinClause{Kind: kind, Table: table.Text, On: on}, nil
}

func (p *Parser) parseUpdate() (ast.Statement, error) {
	p.advance() // UPDATE
	table, err := p.expect(lexer.Ident, "table name")
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	var assigns []ast.Assignment
	for {
		col, err := p.expect(lexer.Ident, "column name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Eq, "="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, ast.Assignment{Column: col.Text, Value: val})
		if p.skip(lexer.Comma) {
			continue
		}
		break
	}
	stmt := ast.UpdateStmt{Table: table.Text, Set: assigns}
	if p.atKeyword("WHERE") {
		p.advance()
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = w
	}
	return stmt, nil
}

func (p *Parser) parseDelete() (ast.Statement, error) {
	p.advance() // DELETE
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expect(lexer.Ident, "table name")
	if err != nil {
		return nil, err
	}
	stmt := ast.DeleteStmt{Table: table.Text}
	if p.atKeyword("WHERE") {
		p.advance()
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = w
	}
	return stmt, nil
}

// Expression grammar, lowest to highest precedence:
// OR < AND < NOT < comparison < additive < multiplicative < unary < primary.

func (p *Parser) parseExpr() (ast.Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = ast.BinaryExpr{Op: ast.OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = ast.BinaryExpr{Op: ast.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (ast.Expr, error) {
	if p.atKeyword("NOT") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return ast.UnaryExpr{Op: ast.OpNot, Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	var op ast.BinaryOp
	switch p.cur().Kind {
	case lexer.Eq:
		op = ast.OpEq
	case lexer.Neq:
		op = ast.OpNeq
	case lexer.Lt:
		op = ast.OpLt
	case lexer.Lte:
		op = ast.OpLte
	case lexer.Gt:
		op = ast.OpGt
	case lexer.Gte:
		op = ast.OpGte
	default:
		return left, nil
	}
	p.advance()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return ast.BinaryExpr{Op: op, Left: left, Right: right}, nil
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == lexer.Plus || p.cur().Kind == lexer.Minus {
		op := ast.OpAdd
		if p.cur().Kind == lexer.Minus {
			op = ast.OpSub
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == lexer.Star || p.cur().Kind == lexer.Slash {
		op := ast.OpMul
		if p.cur().Kind == lexer.Slash {
			op = ast.OpDiv
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	if p.cur().Kind == lexer.Minus {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.UnaryExpr{Op: ast.OpNeg, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	tok := p.cur()
	switch tok.Kind {
	case lexer.IntLit:
		p.advance()
		n, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return nil, dberr.NewParseError(tok.Pos, "invalid integer literal %q", tok.Text)
		}
		return ast.Literal{Value: value.Int(n)}, nil
	case lexer.FloatLit:
		p.advance()
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, dberr.NewParseError(tok.Pos, "invalid float literal %q", tok.Text)
		}
		return ast.Literal{Value: value.Double(f)}, nil
	case lexer.StringLit:
		p.advance()
		return ast.Literal{Value: value.Text(tok.Text)}, nil
	case lexer.Keyword:
		if tok.Text == "NULL" {
			p.advance()
			return ast.Literal{Value: value.Null()}, nil
		}
		if isAggregateName(tok.Text) {
			return p.parseFunctionCall(tok.Text)
		}
		return nil, dberr.NewParseError(tok.Pos, "unexpected keyword %q in expression", tok.Text)
	case lexer.Ident:
		if p.peekAt(1).Kind == lexer.LParen {
			return p.parseFunctionCall(tok.Text)
		}
		p.advance()
		if p.cur().Kind == lexer.Dot {
			p.advance()
			name, err := p.expect(lexer.Ident, "column name")
			if err != nil {
				return nil, err
			}
			return ast.Identifier{Qualifier: tok.Text, Name: name.Text}, nil
		}
		return ast.Identifier{Name: tok.Text}, nil
	case lexer.LParen:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
		return e, nil
	case lexer.Star:
		p.advance()
		return ast.Star{}, nil
	default:
		return nil, dberr.NewParseError(tok.Pos, "unexpected token %q in expression", tok.Text)
	}
}

func isAggregateName(name string) bool {
	switch strings.ToUpper(name) {
	case "COUNT", "SUM", "AVG", "MAX", "MIN":
		return true
	default:
		return false
	}
}

func (p *Parser) parseFunctionCall(name string) (ast.Expr, error) {
	p.advance() // function name
	if _, err := p.expect(lexer.LParen, "("); err != nil {
		return nil, err
	}
	var args []ast.Expr
	if p.cur().Kind == lexer.Star {
		p.advance()
		args = append(args, ast.Star{})
	} else if p.cur().Kind != lexer.RParen {
		for {
			a, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.skip(lexer.Comma) {
				continue
			}
			break
		}
	}
	if _, err := p.expect(lexer.RParen, ")"); err != nil {
		return nil, err
	}
	return ast.FunctionCall{Name: strings.ToUpper(name), Args: args}, nil
}
