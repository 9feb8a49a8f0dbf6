package compiler

import "github.com/oklog/ulid/v2"

// compileStruct parses "struct Name { Type [*...] field; ... } [;]" and
// registers the resulting type. Fields are laid out in declaration order;
// a pointer field takes one word whatever it points to. A field may point
// to the struct being defined. Nothing is registered if any field is
// malformed.
func (s *Session) compileStruct() error {
	s.advance() // struct
	nameTok, err := s.expect(IDENTIFIER, "struct name")
	if err != nil {
		return err
	}
	if _, exists := s.Types.Lookup(nameTok.Name); exists {
		return parseErrorf(nameTok, ErrDuplicate, "struct %s already defined", nameTok.Name)
	}
	if _, err := s.expect(LBRACE, "\"{\" after struct name"); err != nil {
		return err
	}

	desc := &TypeDescriptor{Primitive: PrimStruct, Name: nameTok.Name, ID: ulid.Make()}
	var fields []Field
	size := 0

	for s.peek().Type != RBRACE {
		typeTok := s.advance()
		if typeTok.Type == EOF {
			return parseErrorf(typeTok, ErrUnexpectedToken, "unterminated struct %s", nameTok.Name)
		}
		ft, ok := s.Types.Resolve(typeTok)
		if typeTok.Type == IDENTIFIER && typeTok.Name == nameTok.Name {
			ft, ok = desc, true
		}
		if !ok {
			return parseErrorf(typeTok, ErrUndefined, "unknown field type %s in struct %s", describe(typeTok), nameTok.Name)
		}

		depth := 0
		for s.peek().Type == STAR {
			s.advance()
			depth++
		}

		fieldTok, err := s.expect(IDENTIFIER, "field name")
		if err != nil {
			return err
		}
		if ft == desc && depth == 0 {
			return parseErrorf(fieldTok, ErrUnexpectedToken, "struct %s cannot contain itself", nameTok.Name)
		}
		if ft.SizeAt(depth) == 0 {
			return parseErrorf(fieldTok, ErrUnexpectedToken, "field %s cannot have type %s", fieldTok.Name, TypeString(ft, depth))
		}
		if _, dup := findField(fields, fieldTok.Name); dup {
			return parseErrorf(fieldTok, ErrDuplicate, "duplicate field %s in struct %s", fieldTok.Name, nameTok.Name)
		}
		if _, err := s.expect(SEMICOLON, "\";\" after field "+fieldTok.Name); err != nil {
			return err
		}

		fields = append(fields, Field{Name: fieldTok.Name, Type: ft, Offset: size, PointerDepth: depth})
		size += ft.SizeAt(depth)
	}
	s.advance() // }
	if s.peek().Type == SEMICOLON {
		s.advance()
	}

	if len(fields) == 0 {
		return parseErrorf(nameTok, ErrUnexpectedToken, "struct %s has no fields", nameTok.Name)
	}
	desc.Fields = fields
	desc.Size = size
	if err := s.Types.Register(nameTok.Name, desc); err != nil {
		return parseErrorf(nameTok, ErrDuplicate, "%v", err)
	}
	s.trace("struct %s: %d words, %d fields", desc.Name, desc.Size, len(desc.Fields))
	return nil
}

func findField(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
