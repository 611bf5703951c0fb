package leads

import (
	"strings"
)

const maxNameLength = 64

// validateName checks an attribute name against the identifier rule: letters, digits and
// underscore, not starting with a digit, and not one of the reserved record fields.
func validateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return newError(CodeInvalidName, name, "column name is required")
	}
	if len(trimmed) > maxNameLength {
		return newError(CodeInvalidName, name, "column name %q is longer than %d characters", trimmed, maxNameLength)
	}

	for i, r := range trimmed {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return newError(CodeInvalidName, name, "column name %q must not start with a digit", trimmed)
			}
		default:
			return newError(CodeInvalidName, name, "column name %q may only contain letters, digits and underscore", trimmed)
		}
	}

	if _, ok := reservedFields[normalize(trimmed)]; ok {
		return newError(CodeInvalidName, name, "column name %q is reserved", trimmed)
	}
	return nil
}

// dataTypeAliases maps every accepted spelling to a DataType. The SQL spellings are what the
// portal's management page used to send.
var dataTypeAliases = map[string]DataType{
	"text":      DataTypeText,
	"string":    DataTypeText,
	"varchar":   DataTypeText,
	"nvarchar":  DataTypeText,
	"char":      DataTypeText,
	"nchar":     DataTypeText,
	"number":    DataTypeNumber,
	"numeric":   DataTypeNumber,
	"int":       DataTypeNumber,
	"integer":   DataTypeNumber,
	"bigint":    DataTypeNumber,
	"decimal":   DataTypeNumber,
	"float":     DataTypeNumber,
	"real":      DataTypeNumber,
	"date":      DataTypeDate,
	"datetime":  DataTypeDate,
	"datetime2": DataTypeDate,
	"timestamp": DataTypeDate,
	"boolean":   DataTypeBoolean,
	"bool":      DataTypeBoolean,
	"bit":       DataTypeBoolean,
}

// ParseDataType resolves a declared type, case-insensitively. A size suffix such as
// `varchar(50)` is ignored.
func ParseDataType(s string) (DataType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(key, '('); i > 0 && strings.HasSuffix(key, ")") {
		key = strings.TrimSpace(key[:i])
	}
	dt, ok := dataTypeAliases[key]
	if !ok {
		return "", newError(CodeUnsupportedType, s, "data type %q is not supported", s)
	}
	return dt, nil
}
