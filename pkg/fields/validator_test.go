package fields

import (
	"context"
	"testing"

	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/relations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func newTestValidator() *Validator {
	resolver := relations.NewStaticResolver()
	resolver.Add("proveedores", "prov-1")

	return NewValidator(resolver)
}

func TestValidateField_TypeDispatch(t *testing.T) {
	v := newTestValidator()
	ctx := context.Background()

	tests := []struct {
		name    string
		field   models.Field
		value   any
		wantErr bool
	}{
		{
			name:  "text within bounds",
			field: models.Field{Code: "nombre", Type: models.FieldTypeText, Config: models.FieldConfig{MinLength: intPtr(2), MaxLength: intPtr(10)}},
			value: "hola",
		},
		{
			name:    "text too short",
			field:   models.Field{Code: "nombre", Type: models.FieldTypeText, Config: models.FieldConfig{MinLength: intPtr(5)}},
			value:   "abc",
			wantErr: true,
		},
		{
			name:    "text pattern mismatch",
			field:   models.Field{Code: "codigo", Type: models.FieldTypeText, Config: models.FieldConfig{Pattern: `^[A-Z]{3}$`}},
			value:   "abc",
			wantErr: true,
		},
		{
			name:  "number parses from string",
			field: models.Field{Code: "total", Type: models.FieldTypeNumber},
			value: "42",
		},
		{
			name:    "number above max",
			field:   models.Field{Code: "total", Type: models.FieldTypeNumber, Config: models.FieldConfig{Max: floatPtr(10)}},
			value:   12.5,
			wantErr: true,
		},
		{
			name:    "decimal precision exceeded",
			field:   models.Field{Code: "importe", Type: models.FieldTypeDecimal, Config: models.FieldConfig{Precision: intPtr(2)}},
			value:   3.14159,
			wantErr: true,
		},
		{
			name:  "date valid",
			field: models.Field{Code: "fecha", Type: models.FieldTypeDate},
			value: "2025-06-30",
		},
		{
			name:    "date before minimum",
			field:   models.Field{Code: "fecha", Type: models.FieldTypeDate, Config: models.FieldConfig{MinDate: "2025-01-01"}},
			value:   "2024-12-31",
			wantErr: true,
		},
		{
			name:    "time invalid",
			field:   models.Field{Code: "hora", Type: models.FieldTypeTime},
			value:   "25:99",
			wantErr: true,
		},
		{
			name: "select must be configured option",
			field: models.Field{
				Code: "estado", Type: models.FieldTypeSelect,
				Config: models.FieldConfig{Options: []models.FieldOption{{Value: "alta"}, {Value: "baja"}}},
			},
			value:   "media",
			wantErr: true,
		},
		{
			name: "multiselect all options valid",
			field: models.Field{
				Code: "etiquetas", Type: models.FieldTypeMultiselect,
				Config: models.FieldConfig{Options: []models.FieldOption{{Value: "a"}, {Value: "b"}}},
			},
			value: []any{"a", "b"},
		},
		{
			name: "checkbox group rejects unknown option",
			field: models.Field{
				Code: "grupo", Type: models.FieldTypeCheckboxGroup,
				Config: models.FieldConfig{Options: []models.FieldOption{{Value: "a"}}},
			},
			value:   []any{"a", "z"},
			wantErr: true,
		},
		{
			name:    "checkbox must be boolean",
			field:   models.Field{Code: "acepta", Type: models.FieldTypeCheckbox},
			value:   "yes",
			wantErr: true,
		},
		{
			name:  "switch boolean",
			field: models.Field{Code: "activo", Type: models.FieldTypeSwitch},
			value: true,
		},
		{
			name: "file extension allowed",
			field: models.Field{
				Code: "adjunto", Type: models.FieldTypeFile,
				Config: models.FieldConfig{AllowedExtensions: []string{"pdf"}, MaxFileSize: 1024},
			},
			value: map[string]any{"name": "informe.pdf", "size": float64(512)},
		},
		{
			name: "file too large",
			field: models.Field{
				Code: "adjunto", Type: models.FieldTypeFile,
				Config: models.FieldConfig{MaxFileSize: 100},
			},
			value:   map[string]any{"name": "informe.pdf", "size": float64(512)},
			wantErr: true,
		},
		{
			name: "files rejects multiple without flag",
			field: models.Field{
				Code: "adjuntos", Type: models.FieldTypeFiles,
			},
			value: []any{
				map[string]any{"name": "a.pdf"},
				map[string]any{"name": "b.pdf"},
			},
			wantErr: true,
		},
		{
			name:    "email invalid",
			field:   models.Field{Code: "correo", Type: models.FieldTypeEmail},
			value:   "not-an-email",
			wantErr: true,
		},
		{
			name:  "url valid",
			field: models.Field{Code: "enlace", Type: models.FieldTypeURL},
			value: "https://example.com/x",
		},
		{
			name:    "color invalid",
			field:   models.Field{Code: "color", Type: models.FieldTypeColor},
			value:   "rojo",
			wantErr: true,
		},
		{
			name:  "relation resolves",
			field: models.Field{Code: "proveedor", Type: models.FieldTypeRelation, Config: models.FieldConfig{RelatedCollection: "proveedores"}},
			value: "prov-1",
		},
		{
			name:    "relation unresolved fails",
			field:   models.Field{Code: "proveedor", Type: models.FieldTypeRelation, Config: models.FieldConfig{RelatedCollection: "proveedores"}},
			value:   "prov-404",
			wantErr: true,
		},
		{
			name:  "location coordinates",
			field: models.Field{Code: "ubicacion", Type: models.FieldTypeLocation},
			value: map[string]any{"lat": float64(40.4), "lng": float64(-3.7)},
		},
		{
			name:    "location out of range",
			field:   models.Field{Code: "ubicacion", Type: models.FieldTypeLocation},
			value:   map[string]any{"lat": float64(120), "lng": float64(0)},
			wantErr: true,
		},
		{
			name:  "separator always valid",
			field: models.Field{Code: "sep", Type: models.FieldTypeSeparator, Required: true},
			value: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := v.ValidateField(ctx, tt.field, tt.value, nil)

			if tt.wantErr {
				require.NotEmpty(t, violations)
				assert.Equal(t, tt.field.Code, violations[0].FieldCode)
			} else {
				assert.Empty(t, violations)
			}
		})
	}
}

func TestValidateField_RequiredAndEmpty(t *testing.T) {
	v := newTestValidator()
	field := models.Field{Code: "auditor", Type: models.FieldTypeText, Required: true}

	violations := v.ValidateField(context.Background(), field, "   ", nil)
	require.Len(t, violations, 1)
	assert.Equal(t, "required", violations[0].Reason)

	field.Required = false
	assert.Empty(t, v.ValidateField(context.Background(), field, nil, nil))
}

func TestValidateField_CustomRules(t *testing.T) {
	v := newTestValidator()
	ctx := context.Background()

	field := models.Field{
		Code: "dni",
		Type: models.FieldTypeText,
		Rules: []models.ValidationRule{
			{Type: models.RuleRegex, Pattern: `^[0-9]{8}[A-Z]$`, Message: "formato DNI"},
		},
	}

	violations := v.ValidateField(ctx, field, "12345678", nil)
	require.Len(t, violations, 1)
	assert.Equal(t, "formato DNI", violations[0].Reason)

	assert.Empty(t, v.ValidateField(ctx, field, "12345678Z", nil))

	dependent := models.Field{
		Code:  "motivo",
		Type:  models.FieldTypeText,
		Rules: []models.ValidationRule{{Type: models.RuleDependent, DependsOn: "causa"}},
	}

	violations = v.ValidateField(ctx, dependent, "texto", map[string]any{})
	require.Len(t, violations, 1)

	assert.Empty(t, v.ValidateField(ctx, dependent, "texto", map[string]any{"causa": "x"}))
}

func TestValidateData_ReturnsAllViolations(t *testing.T) {
	v := newTestValidator()

	state := &models.State{
		ID:   "st-1",
		Code: "planificada",
		Fields: []models.Field{
			{Code: "auditor", Type: models.FieldTypeText, Required: true},
			{Code: "alcance", Type: models.FieldTypeNumber, Required: true},
			{Code: "correo", Type: models.FieldTypeEmail},
		},
	}

	datos := map[string]any{
		"alcance": "not-a-number",
		"correo":  "broken",
	}

	err := v.ValidateData(context.Background(), state, datos, true)
	require.NotNil(t, err)

	codes := make([]string, 0, len(err.Violations))
	for _, violation := range err.Violations {
		codes = append(codes, violation.FieldCode)
	}

	// All three problems in one response, not just the first.
	assert.ElementsMatch(t, []string{"auditor", "alcance", "correo"}, codes)
}

func TestValidateData_SoftModeSkipsMissingRequired(t *testing.T) {
	v := newTestValidator()

	state := &models.State{
		Fields: []models.Field{
			{Code: "auditor", Type: models.FieldTypeText, Required: true},
		},
	}

	assert.Nil(t, v.ValidateData(context.Background(), state, map[string]any{}, false))
	assert.NotNil(t, v.ValidateData(context.Background(), state, map[string]any{}, true))
}

func TestComputeFormulas(t *testing.T) {
	v := newTestValidator()

	state := &models.State{
		Fields: []models.Field{
			{Code: "precio", Type: models.FieldTypeNumber},
			{Code: "cantidad", Type: models.FieldTypeNumber},
			{Code: "total", Type: models.FieldTypeFormula, Config: models.FieldConfig{Formula: "precio * cantidad"}},
		},
	}

	datos := map[string]any{"precio": float64(3), "cantidad": float64(4)}
	v.ComputeFormulas(state, datos)
	assert.InDelta(t, 12.0, datos["total"], 1e-9)

	// Missing reference unsets the value instead of failing.
	delete(datos, "cantidad")
	v.ComputeFormulas(state, datos)

	_, present := datos["total"]
	assert.False(t, present)
}
