package engine

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"mra/internal/ddl"
	"mra/internal/domain"
)

// timestampType is the Arrow type time.Time columns are written as.
var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// ToArrowRecord converts rel into an Arrow record. Column types are inferred from
// the values the same way they are for DuckDB tables, so the conversion is not
// lossless: a column mixing int64 and float64 values is widened to DOUBLE and reads
// back as float64, and times are stored in UTC with microsecond precision. The
// caller must Release the record.
func ToArrowRecord(rel domain.Relation) (arrow.Record, error) {
	defs, err := columnDefs(rel)
	if err != nil {
		return nil, err
	}
	fields := make([]arrow.Field, len(defs))
	cols := make([]arrow.Array, len(defs))
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()
	for i, d := range defs {
		vals, err := rel.Column(d.Name)
		if err != nil {
			return nil, err
		}
		arr, dt, err := buildArray(d.Type, vals)
		if err != nil {
			return nil, domain.ErrInvalidSchema("column %q: %s", d.Name, err.Error())
		}
		fields[i] = arrow.Field{Name: d.Name, Type: dt, Nullable: true}
		cols[i] = arr
	}
	schema := arrow.NewSchema(fields, nil)
	return array.NewRecord(schema, cols, int64(rel.Len())), nil
}

func buildArray(typ ddl.ColumnType, vals []any) (arrow.Array, arrow.DataType, error) {
	mem := memory.DefaultAllocator
	switch typ {
	case ddl.TypeBigint:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		for _, v := range vals {
			if v == nil {
				b.AppendNull()
				continue
			}
			b.Append(v.(int64))
		}
		return b.NewArray(), arrow.PrimitiveTypes.Int64, nil
	case ddl.TypeDouble:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		for _, v := range vals {
			f, ok := domain.AsFloat(v)
			if !ok {
				b.AppendNull()
				continue
			}
			b.Append(f)
		}
		return b.NewArray(), arrow.PrimitiveTypes.Float64, nil
	case ddl.TypeBoolean:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		for _, v := range vals {
			if v == nil {
				b.AppendNull()
				continue
			}
			b.Append(v.(bool))
		}
		return b.NewArray(), arrow.FixedWidthTypes.Boolean, nil
	case ddl.TypeTimestamp:
		b := array.NewTimestampBuilder(mem, timestampType)
		defer b.Release()
		for _, v := range vals {
			if v == nil {
				b.AppendNull()
				continue
			}
			b.Append(arrow.Timestamp(v.(time.Time).UnixMicro()))
		}
		return b.NewArray(), timestampType, nil
	case ddl.TypeVarchar:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for _, v := range vals {
			if v == nil {
				b.AppendNull()
				continue
			}
			b.Append(v.(string))
		}
		return b.NewArray(), arrow.BinaryTypes.String, nil
	default:
		return nil, nil, fmt.Errorf("unsupported column type %s", typ)
	}
}

// FromArrowRecord reads an Arrow record into a relation.
func FromArrowRecord(rec arrow.Record) (domain.Relation, error) {
	ncols := int(rec.NumCols())
	nrows := int(rec.NumRows())
	columns := make([]string, ncols)
	for i := 0; i < ncols; i++ {
		columns[i] = rec.ColumnName(i)
	}
	rows := make([][]any, nrows)
	for r := range rows {
		rows[r] = make([]any, ncols)
	}
	for c := 0; c < ncols; c++ {
		arr := rec.Column(c)
		for r := 0; r < nrows; r++ {
			if arr.IsNull(r) {
				continue
			}
			v, err := arrowValue(arr, r)
			if err != nil {
				return domain.Relation{}, domain.ErrInvalidSchema("column %q: %s", columns[c], err.Error())
			}
			rows[r][c] = v
		}
	}
	return domain.NewRelation(columns, rows)
}

func arrowValue(arr arrow.Array, i int) (any, error) {
	switch a := arr.(type) {
	case *array.Int64:
		return a.Value(i), nil
	case *array.Int32:
		return int64(a.Value(i)), nil
	case *array.Int16:
		return int64(a.Value(i)), nil
	case *array.Int8:
		return int64(a.Value(i)), nil
	case *array.Uint32:
		return int64(a.Value(i)), nil
	case *array.Uint16:
		return int64(a.Value(i)), nil
	case *array.Uint8:
		return int64(a.Value(i)), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.Float32:
		return float64(a.Value(i)), nil
	case *array.String:
		return a.Value(i), nil
	case *array.LargeString:
		return a.Value(i), nil
	case *array.Boolean:
		return a.Value(i), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC(), nil
	default:
		return nil, fmt.Errorf("unsupported arrow type %s", arr.DataType())
	}
}

// SpaceRecord is one relation of a space in Arrow form.
type SpaceRecord struct {
	Schema domain.RelationSchema
	Record arrow.Record
}

// SpaceToArrow converts every relation of space, in space order. On error, records
// built so far are released.
func SpaceToArrow(space *domain.RelationSpace) ([]SpaceRecord, error) {
	var out []SpaceRecord
	var err error
	space.Each(func(s domain.RelationSchema, rel domain.Relation) bool {
		var rec arrow.Record
		rec, err = ToArrowRecord(rel)
		if err != nil {
			err = fmt.Errorf("relation %s: %w", s, err)
			return false
		}
		out = append(out, SpaceRecord{Schema: s, Record: rec})
		return true
	})
	if err != nil {
		for _, r := range out {
			r.Record.Release()
		}
		return nil, err
	}
	return out, nil
}
