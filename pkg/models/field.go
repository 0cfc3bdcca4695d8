package models

// FieldType identifies the kind of value a field stores and how it is
// validated. The set is closed: unknown types are rejected at template save.
type FieldType string

const (
	FieldTypeText          FieldType = "text"
	FieldTypeTextarea      FieldType = "textarea"
	FieldTypeNumber        FieldType = "number"
	FieldTypeDecimal       FieldType = "decimal"
	FieldTypeDate          FieldType = "date"
	FieldTypeDatetime      FieldType = "datetime"
	FieldTypeTime          FieldType = "time"
	FieldTypeSelect        FieldType = "select"
	FieldTypeMultiselect   FieldType = "multiselect"
	FieldTypeRadio         FieldType = "radio"
	FieldTypeCheckbox      FieldType = "checkbox"
	FieldTypeCheckboxGroup FieldType = "checkbox_group"
	FieldTypeFile          FieldType = "file"
	FieldTypeFiles         FieldType = "files"
	FieldTypeImage         FieldType = "image"
	FieldTypeUser          FieldType = "user"
	FieldTypeUsers         FieldType = "users"
	FieldTypeEmail         FieldType = "email"
	FieldTypePhone         FieldType = "phone"
	FieldTypeURL           FieldType = "url"
	FieldTypeColor         FieldType = "color"
	FieldTypeRating        FieldType = "rating"
	FieldTypeSlider        FieldType = "slider"
	FieldTypeSwitch        FieldType = "switch"
	FieldTypeFormula       FieldType = "formula"
	FieldTypeRelation      FieldType = "relation"
	FieldTypeLocation      FieldType = "location"
	FieldTypeSignature     FieldType = "signature"
	FieldTypeBarcode       FieldType = "barcode"
	FieldTypeQR            FieldType = "qr"
	FieldTypeSeparator     FieldType = "separator"
	FieldTypeTitle         FieldType = "title"
	FieldTypeHTML          FieldType = "html"
	FieldTypeProgress      FieldType = "progress"
)

// PresentationOnly reports whether the type carries no user data and is
// therefore never required and always valid.
func (t FieldType) PresentationOnly() bool {
	switch t {
	case FieldTypeSeparator, FieldTypeTitle, FieldTypeHTML, FieldTypeProgress:
		return true
	default:
		return false
	}
}

// KnownFieldTypes lists every accepted field type tag.
func KnownFieldTypes() []FieldType {
	return []FieldType{
		FieldTypeText, FieldTypeTextarea, FieldTypeNumber, FieldTypeDecimal,
		FieldTypeDate, FieldTypeDatetime, FieldTypeTime, FieldTypeSelect,
		FieldTypeMultiselect, FieldTypeRadio, FieldTypeCheckbox,
		FieldTypeCheckboxGroup, FieldTypeFile, FieldTypeFiles, FieldTypeImage,
		FieldTypeUser, FieldTypeUsers, FieldTypeEmail, FieldTypePhone,
		FieldTypeURL, FieldTypeColor, FieldTypeRating, FieldTypeSlider,
		FieldTypeSwitch, FieldTypeFormula, FieldTypeRelation, FieldTypeLocation,
		FieldTypeSignature, FieldTypeBarcode, FieldTypeQR, FieldTypeSeparator,
		FieldTypeTitle, FieldTypeHTML, FieldTypeProgress,
	}
}

// FieldOption is one selectable value for select-like fields.
type FieldOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

// FieldConfig carries the type-specific configuration of a field. Only the
// subset relevant to the field's type is honored by the validator.
type FieldConfig struct {
	Options []FieldOption `json:"options,omitempty"`

	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Precision *int     `json:"precision,omitempty"`

	MinLength *int   `json:"min_length,omitempty"`
	MaxLength *int   `json:"max_length,omitempty"`
	Pattern   string `json:"pattern,omitempty"`

	MinDate string `json:"min_date,omitempty"`
	MaxDate string `json:"max_date,omitempty"`

	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
	MaxFileSize       int64    `json:"max_file_size,omitempty"`
	MultipleFiles     bool     `json:"multiples_archivos,omitempty"`

	// Formula expression over sibling field codes, e.g. "precio * cantidad".
	Formula       string   `json:"formula,omitempty"`
	FormulaFields []string `json:"formula_fields,omitempty"`

	// Relation target collection.
	RelatedCollection string `json:"related_collection,omitempty"`
}

// ValidationRuleType identifies a custom validation rule applied after the
// type-level check.
type ValidationRuleType string

const (
	RuleRegex     ValidationRuleType = "regex"
	RuleRange     ValidationRuleType = "range"
	RuleUnique    ValidationRuleType = "unique"
	RuleDependent ValidationRuleType = "dependent"
	RuleCustom    ValidationRuleType = "custom"
)

// ValidationRule is a custom rule attached to a field definition.
type ValidationRule struct {
	Type    ValidationRuleType `json:"type"`
	Pattern string             `json:"pattern,omitempty"`
	Min     *float64           `json:"min,omitempty"`
	Max     *float64           `json:"max,omitempty"`
	// Dependent rules require another field to be non-empty first.
	DependsOn string `json:"depends_on,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Field is one typed, configurable data slot declared within a state.
type Field struct {
	ID             string           `json:"id"`
	Code           string           `json:"code"           validate:"required"`
	Label          string           `json:"label"          validate:"required"`
	Type           FieldType        `json:"type"           validate:"required"`
	Required       bool             `json:"required"`
	ReadOnly       bool             `json:"read_only"`
	SummaryVisible bool             `json:"summary_visible"`
	SummaryOrder   int              `json:"summary_order"`
	FormOrder      int              `json:"orden_formulario"`
	Config         FieldConfig      `json:"config"`
	Rules          []ValidationRule `json:"rules,omitempty"`
	Permissions    PermissionSet    `json:"permissions"`
}
