package leads

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	for _, name := range []string{"Company", "company_name", "_hidden", "a1", "  Phone  ", strings.Repeat("a", maxNameLength)} {
		assert.NoError(t, validateName(name), name)
	}

	for _, name := range []string{
		"",
		"   ",
		"1st",
		"first name",
		"drop;table",
		"naïve",
		strings.Repeat("a", maxNameLength+1),
		"id",
		"Status",
		"submitterid",
		"CREATEDAT",
	} {
		err := validateName(name)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestParseDataType(t *testing.T) {
	cases := map[string]DataType{
		"Text":          DataTypeText,
		"varchar(50)":   DataTypeText,
		"NVARCHAR(max)": DataTypeText,
		"NUMBER":        DataTypeNumber,
		"decimal(10,2)": DataTypeNumber,
		"bigint":        DataTypeNumber,
		"date":          DataTypeDate,
		"DateTime":      DataTypeDate,
		"Bit":           DataTypeBoolean,
		"boolean":       DataTypeBoolean,
	}
	for in, want := range cases {
		got, err := ParseDataType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "blob", "json", "(10)"} {
		_, err := ParseDataType(in)
		require.Error(t, err, in)
		assert.Equal(t, CodeUnsupportedType, CodeOf(err), in)
	}
}

func TestParseStatus(t *testing.T) {
	st, ok := ParseStatus("")
	assert.True(t, ok)
	assert.Equal(t, StatusPending, st)

	st, ok = ParseStatus(" APPROVED ")
	assert.True(t, ok)
	assert.Equal(t, StatusApproved, st)

	_, ok = ParseStatus("maybe")
	assert.False(t, ok)
}
