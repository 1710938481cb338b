package ddl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		// Valid cases
		{name: "simple", input: "mra_base"},
		{name: "underscore_prefix", input: "_temp"},
		{name: "with_digits", input: "base_0190a"},
		{name: "max_length", input: strings.Repeat("a", 128)},

		// Invalid cases
		{name: "empty", input: "", wantErr: "table name is required"},
		{name: "too_long", input: strings.Repeat("a", 129), wantErr: "at most 128 characters"},
		{name: "starts_with_digit", input: "1table", wantErr: "must match"},
		{name: "contains_hyphen", input: "base-0190", wantErr: "must match"},
		{name: "sql_injection", input: "foo; DROP TABLE", wantErr: "must match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTableName(tt.input)
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateColumnName(t *testing.T) {
	require.NoError(t, ValidateColumnName("cost per click"))
	require.NoError(t, ValidateColumnName(`odd"name`))
	assert.ErrorContains(t, ValidateColumnName(""), "column name is required")
	assert.ErrorContains(t, ValidateColumnName("a\x00b"), "NUL")
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple", input: "device", want: `"device"`},
		{name: "with_double_quote", input: `my"col`, want: `"my""col"`},
		{name: "with_space", input: "cost per click", want: `"cost per click"`},
		{name: "empty", input: "", want: `""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteIdentifier(tt.input))
		})
	}
}

func TestColumnType(t *testing.T) {
	for _, typ := range []ColumnType{TypeBigint, TypeDouble, TypeVarchar, TypeBoolean, TypeTimestamp} {
		assert.NoError(t, typ.Validate(), typ)
	}
	assert.ErrorContains(t, ColumnType("").Validate(), "required")
	assert.ErrorContains(t, ColumnType("INTEGER; DROP").Validate(), "not supported")
	assert.True(t, TypeBigint.IsNumeric())
	assert.True(t, TypeDouble.IsNumeric())
	assert.False(t, TypeVarchar.IsNumeric())
}
