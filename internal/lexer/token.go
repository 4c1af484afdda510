package lexer

import "fmt"

// TokenType identifies the lexical class of a token.
type TokenType int

const (
	// Keywords
	LET TokenType = iota
	IF
	THEN
	ELSE
	FOR
	TO
	STEP
	NEXT
	WHILE
	WEND
	DO
	LOOP
	UNTIL
	SUB
	END
	FUNCTION
	RETURN
	PRINT
	INPUT
	READ
	DATA
	RESTORE
	DIM
	MOD

	// Literals and names
	IDENTIFIER
	NUMBER
	STRING

	// Operators
	PLUS
	MINUS
	MULTIPLY
	DIVIDE
	POWER
	EQUALS
	NOTEQUAL
	LESS
	LESSEQUAL
	GREATER
	GREATEREQUAL

	// Punctuation
	LPAREN
	RPAREN
	COMMA
	SEMICOLON
	COLON

	EOF
)

var tokenNames = map[TokenType]string{
	LET: "LET", IF: "IF", THEN: "THEN", ELSE: "ELSE", FOR: "FOR",
	TO: "TO", STEP: "STEP", NEXT: "NEXT", WHILE: "WHILE", WEND: "WEND",
	DO: "DO", LOOP: "LOOP", UNTIL: "UNTIL", SUB: "SUB", END: "END",
	FUNCTION: "FUNCTION", RETURN: "RETURN", PRINT: "PRINT", INPUT: "INPUT",
	READ: "READ", DATA: "DATA", RESTORE: "RESTORE", DIM: "DIM", MOD: "MOD",

	IDENTIFIER: "IDENTIFIER", NUMBER: "NUMBER", STRING: "STRING",

	PLUS: "+", MINUS: "-", MULTIPLY: "*", DIVIDE: "/", POWER: "^",
	EQUALS: "=", NOTEQUAL: "<>", LESS: "<", LESSEQUAL: "<=",
	GREATER: ">", GREATEREQUAL: ">=",

	LPAREN: "(", RPAREN: ")", COMMA: ",", SEMICOLON: ";", COLON: ":",

	EOF: "EOF",
}

// String returns a printable name for the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// keywords maps uppercased identifier text to keyword token types.
// BASIC keywords are case-insensitive.
var keywords = map[string]TokenType{
	"LET": LET, "IF": IF, "THEN": THEN, "ELSE": ELSE, "FOR": FOR,
	"TO": TO, "STEP": STEP, "NEXT": NEXT, "WHILE": WHILE, "WEND": WEND,
	"DO": DO, "LOOP": LOOP, "UNTIL": UNTIL, "SUB": SUB, "END": END,
	"FUNCTION": FUNCTION, "RETURN": RETURN, "PRINT": PRINT, "INPUT": INPUT,
	"READ": READ, "DATA": DATA, "RESTORE": RESTORE, "DIM": DIM, "MOD": MOD,
}

// Token is a single lexeme with its source position. Line and Column
// are 1-based.
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int
	Column int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d:%d", t.Type, t.Lexeme, t.Line, t.Column)
}
