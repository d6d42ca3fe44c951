package mapping

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/spf13/afero"
)

// mappingLexer defines the token types of mapping files.
var mappingLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `//[^\n]*`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Arrow", Pattern: `->`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_]*`},
	{Name: "Punct", Pattern: `[{}():,]`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

// File is the parse tree of a mapping file:
//
//	entity Order table "orders" {
//	  one Customer: Customer (CustomerID -> ID) nullable as "c"
//	  many Lines: OrderLine (ID -> OrderID)
//	  method FindCustomer: Customer (CustomerID -> ID)
//	}
//	entity SpecialOrder extends Order {}
type File struct {
	Pos      lexer.Position
	Entities []*EntityDecl `@@*`
}

// EntityDecl declares one entity type.
type EntityDecl struct {
	Pos          lexer.Position
	Name         string             `"entity" @Ident`
	Extends      string             `( "extends" @Ident )?`
	Table        string             `( "table" @String )?`
	Associations []*AssociationDecl `"{" @@* "}"`
}

// AssociationDecl declares one association of an entity.
type AssociationDecl struct {
	Pos     lexer.Position
	Kind    string        `@( "one" | "many" | "method" )`
	Member  string        `@Ident ":"`
	Target  string        `@Ident`
	Keys    []*KeyDecl    `"(" @@ ( "," @@ )* ")"`
	Options []*OptionDecl `@@*`
}

// KeyDecl is one "ThisKey -> OtherKey" pair.
type KeyDecl struct {
	This  string `@Ident "->"`
	Other string `@Ident`
}

// OptionDecl is one trailing association modifier.
type OptionDecl struct {
	Nullable  bool    `  @"nullable"`
	Alias     *string `| "as" @String`
	Predicate *string `| "where" @String`
	Storage   *string `| "storage" @Ident`
}

var mappingParser = participle.MustBuild[File](
	participle.Lexer(mappingLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)

// ParseMapping parses a mapping file from an io.Reader.
func ParseMapping(filename string, r io.Reader) (*File, error) {
	f, err := mappingParser.Parse(filename, r)
	if err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", filename, err)
	}
	return f, nil
}

// ParseMappingString parses a mapping file from a string.
func ParseMappingString(filename, input string) (*File, error) {
	return ParseMapping(filename, strings.NewReader(input))
}

// Apply registers the file's declarations into b.
func (f *File) Apply(b *Builder) {
	for _, ent := range f.Entities {
		eb := b.Entity(ent.Name)
		if ent.Table != "" {
			eb.Table(ent.Table)
		}
		if ent.Extends != "" {
			eb.Extends(ent.Extends)
		}
		for _, a := range ent.Associations {
			thisKey := make([]string, len(a.Keys))
			otherKey := make([]string, len(a.Keys))
			for i, k := range a.Keys {
				thisKey[i], otherKey[i] = k.This, k.Other
			}
			opts := a.options()
			switch a.Kind {
			case "one":
				eb.HasOne(a.Member, a.Target, thisKey, otherKey, opts...)
			case "many":
				eb.HasMany(a.Member, a.Target, thisKey, otherKey, opts...)
			case "method":
				eb.Method(a.Member, a.Target, thisKey, otherKey, opts...)
			}
		}
	}
}

func (a *AssociationDecl) options() []AssociationOption {
	var opts []AssociationOption
	for _, o := range a.Options {
		switch {
		case o.Nullable:
			opts = append(opts, Nullable(true))
		case o.Alias != nil:
			opts = append(opts, WithAlias(*o.Alias))
		case o.Predicate != nil:
			opts = append(opts, WithPredicate(*o.Predicate))
		case o.Storage != nil:
			opts = append(opts, WithStorage(*o.Storage))
		}
	}
	return opts
}

// LoadSchema parses a mapping file and builds a schema named configuration.
func LoadSchema(configuration, filename string, r io.Reader) (*MappingSchema, error) {
	f, err := ParseMapping(filename, r)
	if err != nil {
		return nil, err
	}
	ms := NewMappingSchema(configuration)
	b := NewBuilder(ms)
	f.Apply(b)
	if err := b.Build(); err != nil {
		return nil, fmt.Errorf("mapping %s: %w", filename, err)
	}
	return ms, nil
}

// LoadSchemaFile reads and builds a mapping file from fs.
func LoadSchemaFile(fs afero.Fs, configuration, path string) (*MappingSchema, error) {
	fh, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mapping file: %w", err)
	}
	defer fh.Close()
	return LoadSchema(configuration, path, fh)
}
