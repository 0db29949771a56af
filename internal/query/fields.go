package query

import (
	"fmt"
	"strings"

	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/schema"
)

// Catalog resolves dynamic property names. Implementations read the
// registry's current state; the compiler never keeps a copy beyond a
// single compile call. A name that is not registered is (nil, false, nil);
// err is reserved for lookups that could not be answered.
type Catalog interface {
	Property(et schema.EntityType, name string) (*schema.Property, bool, error)
}

// StaticCatalog is a Catalog over a fixed list of definitions.
type StaticCatalog map[schema.EntityType]map[string]*schema.Property

// NewStaticCatalog indexes props by entity type and name.
func NewStaticCatalog(props ...schema.Property) StaticCatalog {
	c := make(StaticCatalog)
	for i := range props {
		p := props[i]
		if c[p.EntityType] == nil {
			c[p.EntityType] = make(map[string]*schema.Property)
		}
		c[p.EntityType][p.Name] = &p
	}
	return c
}

// Property implements Catalog.
func (c StaticCatalog) Property(et schema.EntityType, name string) (*schema.Property, bool, error) {
	p, ok := c[et][name]
	return p, ok, nil
}

// Field is a resolved field reference.
type Field struct {
	// Ref is the reference as written, e.g. "compounds.details.ic50".
	Ref       string
	Level     schema.EntityType
	Name      string
	Dynamic   bool
	ValueType schema.ValueType
	Column    schema.Column
	Property  *schema.Property
}

// Key identifies the field independent of spelling.
func (f *Field) Key() string {
	if f.Dynamic {
		return f.Level.Table() + ".details." + f.Name
	}
	return f.Level.Table() + "." + f.Name
}

// resolveField turns "level.column" or "level.details.name" into a Field.
func resolveField(cat Catalog, ref string) (*Field, error) {
	unknown := func(format string, args ...any) *errs.Error {
		return errs.New(errs.UnknownField, format, args...).WithField(ref)
	}

	parts := strings.Split(strings.TrimSpace(ref), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, unknown("field must be written as level.column or level.details.name")
	}
	level, err := schema.ParseEntityType(parts[0])
	if err != nil || !strings.EqualFold(parts[0], level.Table()) {
		return nil, unknown("unknown level %q", parts[0])
	}

	if len(parts) == 3 {
		if parts[1] != "details" {
			return nil, unknown("expected %s.details.<name>", parts[0])
		}
		if cat == nil {
			return nil, unknown("no dynamic properties are registered")
		}
		prop, ok, err := cat.Property(level, parts[2])
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", ref, err)
		}
		if !ok {
			return nil, unknown("property %q is not registered for %s", parts[2], level).WithEntity(string(level))
		}
		return &Field{
			Ref:       ref,
			Level:     level,
			Name:      prop.Name,
			Dynamic:   true,
			ValueType: prop.ValueType,
			Property:  prop,
		}, nil
	}

	col, ok := schema.FixedColumn(level, parts[1])
	if !ok {
		return nil, unknown("%q is not a column of %s", parts[1], level.Table()).WithEntity(string(level))
	}
	return &Field{
		Ref:       ref,
		Level:     level,
		Name:      col.Name,
		ValueType: col.ValueType,
		Column:    col,
	}, nil
}

// ValueColumn returns the typed column of a details table holding values
// of vt.
func ValueColumn(vt schema.ValueType) string {
	switch vt {
	case schema.TypeDouble, schema.TypeInt:
		return "value_num"
	case schema.TypeDatetime:
		return "value_datetime"
	case schema.TypeUUID:
		return "value_uuid"
	case schema.TypeBool:
		return "value_bool"
	}
	return "value_string"
}
