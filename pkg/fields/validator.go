// Package fields validates dynamically-typed field values against their
// declared type and configuration. Validation is dispatched by the field's
// type tag through a lookup table, never by the value's runtime shape.
package fields

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence"
	"github.com/gestia/gestia/pkg/relations"
)

type checkFunc func(ctx context.Context, v *Validator, field models.Field, value any) []persistence.FieldViolation

// Validator checks values against field declarations. Relation-typed fields
// delegate existence checks to the configured resolver.
type Validator struct {
	resolver relations.Resolver
	checks   map[models.FieldType]checkFunc
}

// NewValidator creates a validator with the full type dispatch table.
func NewValidator(resolver relations.Resolver) *Validator {
	v := &Validator{resolver: resolver}
	v.checks = map[models.FieldType]checkFunc{
		models.FieldTypeText:          checkText,
		models.FieldTypeTextarea:      checkText,
		models.FieldTypeNumber:        checkNumber,
		models.FieldTypeDecimal:       checkDecimal,
		models.FieldTypeDate:          checkDate,
		models.FieldTypeDatetime:      checkDate,
		models.FieldTypeTime:          checkTime,
		models.FieldTypeSelect:        checkOption,
		models.FieldTypeRadio:         checkOption,
		models.FieldTypeMultiselect:   checkOptionList,
		models.FieldTypeCheckboxGroup: checkOptionList,
		models.FieldTypeCheckbox:      checkBool,
		models.FieldTypeSwitch:        checkBool,
		models.FieldTypeFile:          checkFile,
		models.FieldTypeImage:         checkFile,
		models.FieldTypeFiles:         checkFileList,
		models.FieldTypeUser:          checkString,
		models.FieldTypeUsers:         checkStringList,
		models.FieldTypeEmail:         checkEmail,
		models.FieldTypePhone:         checkPhone,
		models.FieldTypeURL:           checkURL,
		models.FieldTypeColor:         checkColor,
		models.FieldTypeRating:        checkNumber,
		models.FieldTypeSlider:        checkNumber,
		models.FieldTypeFormula:       checkNothing,
		models.FieldTypeRelation:      checkRelation,
		models.FieldTypeLocation:      checkLocation,
		models.FieldTypeSignature:     checkString,
		models.FieldTypeBarcode:       checkString,
		models.FieldTypeQR:            checkString,
	}

	return v
}

// ValidateField checks a single value against its field declaration,
// returning every violation found. Datos provides sibling values for
// dependent rules.
func (v *Validator) ValidateField(ctx context.Context, field models.Field, value any, datos map[string]any) []persistence.FieldViolation {
	if field.Type.PresentationOnly() {
		return nil
	}

	if IsEmpty(value) {
		if field.Required && field.Type != models.FieldTypeFormula {
			return []persistence.FieldViolation{{FieldCode: field.Code, Reason: "required"}}
		}

		return nil
	}

	check, ok := v.checks[field.Type]
	if !ok {
		return []persistence.FieldViolation{{FieldCode: field.Code, Reason: fmt.Sprintf("unknown field type %q", field.Type)}}
	}

	violations := check(ctx, v, field, value)

	violations = append(violations, applyRules(field, value, datos)...)

	return violations
}

// ValidateData checks every value in datos against the state's field schema.
// With enforceRequired set, required fields missing from datos are reported
// too. The complete violation list is always returned, never just the first.
func (v *Validator) ValidateData(ctx context.Context, state *models.State, datos map[string]any, enforceRequired bool) *persistence.ValidationError {
	violations := make([]persistence.FieldViolation, 0)

	for _, field := range state.Fields {
		value, present := datos[field.Code]

		if !present || IsEmpty(value) {
			if enforceRequired && field.Required && !field.Type.PresentationOnly() && field.Type != models.FieldTypeFormula {
				violations = append(violations, persistence.FieldViolation{FieldCode: field.Code, Reason: "required"})
			}

			continue
		}

		violations = append(violations, v.ValidateField(ctx, field, value, datos)...)
	}

	if len(violations) == 0 {
		return nil
	}

	return &persistence.ValidationError{Violations: violations}
}

// ComputeFormulas evaluates every formula field of the state against datos
// and writes the results back. Unresolvable formulas unset the entry rather
// than fail.
func (v *Validator) ComputeFormulas(state *models.State, datos map[string]any) {
	for _, field := range state.Fields {
		if field.Type != models.FieldTypeFormula || field.Config.Formula == "" {
			continue
		}

		result, ok := EvaluateFormula(field.Config.Formula, datos)
		if !ok {
			delete(datos, field.Code)
			continue
		}

		datos[field.Code] = result
	}
}

// IsEmpty reports whether a value counts as unset: nil, blank string, or an
// empty collection.
func IsEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

func violation(field models.Field, format string, args ...any) []persistence.FieldViolation {
	return []persistence.FieldViolation{{FieldCode: field.Code, Reason: fmt.Sprintf(format, args...)}}
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}

		return parsed, true
	default:
		return 0, false
	}
}

func checkNothing(_ context.Context, _ *Validator, _ models.Field, _ any) []persistence.FieldViolation {
	return nil
}

func checkText(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	str, ok := value.(string)
	if !ok {
		return violation(field, "expected text")
	}

	trimmed := strings.TrimSpace(str)

	cfg := field.Config
	if cfg.MinLength != nil && len(trimmed) < *cfg.MinLength {
		return violation(field, "shorter than %d characters", *cfg.MinLength)
	}

	if cfg.MaxLength != nil && len(trimmed) > *cfg.MaxLength {
		return violation(field, "longer than %d characters", *cfg.MaxLength)
	}

	if cfg.Pattern != "" {
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return violation(field, "invalid pattern in field configuration")
		}

		if !re.MatchString(trimmed) {
			return violation(field, "does not match pattern")
		}
	}

	return nil
}

func checkNumber(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	num, ok := asNumber(value)
	if !ok {
		return violation(field, "not a number")
	}

	return checkNumericBounds(field, num)
}

func checkDecimal(ctx context.Context, v *Validator, field models.Field, value any) []persistence.FieldViolation {
	violations := checkNumber(ctx, v, field, value)
	if len(violations) > 0 {
		return violations
	}

	if field.Config.Precision != nil {
		num, _ := asNumber(value)

		formatted := strconv.FormatFloat(num, 'f', -1, 64)
		if idx := strings.IndexByte(formatted, '.'); idx >= 0 {
			if decimals := len(formatted) - idx - 1; decimals > *field.Config.Precision {
				return violation(field, "more than %d decimal places", *field.Config.Precision)
			}
		}
	}

	return nil
}

func checkNumericBounds(field models.Field, num float64) []persistence.FieldViolation {
	cfg := field.Config
	if cfg.Min != nil && num < *cfg.Min {
		return violation(field, "below minimum %v", *cfg.Min)
	}

	if cfg.Max != nil && num > *cfg.Max {
		return violation(field, "above maximum %v", *cfg.Max)
	}

	return nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05", "2006-01-02T15:04"}

func parseDate(value any) (time.Time, bool) {
	str, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, strings.TrimSpace(str)); err == nil {
			return parsed, true
		}
	}

	return time.Time{}, false
}

func checkDate(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	parsed, ok := parseDate(value)
	if !ok {
		return violation(field, "not a valid date")
	}

	cfg := field.Config
	if cfg.MinDate != "" {
		if minDate, ok := parseDate(cfg.MinDate); ok && parsed.Before(minDate) {
			return violation(field, "before minimum date %s", cfg.MinDate)
		}
	}

	if cfg.MaxDate != "" {
		if maxDate, ok := parseDate(cfg.MaxDate); ok && parsed.After(maxDate) {
			return violation(field, "after maximum date %s", cfg.MaxDate)
		}
	}

	return nil
}

var timeRe = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d(:[0-5]\d)?$`)

func checkTime(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	str, ok := value.(string)
	if !ok || !timeRe.MatchString(strings.TrimSpace(str)) {
		return violation(field, "not a valid time")
	}

	return nil
}

func optionValues(field models.Field) map[string]bool {
	values := make(map[string]bool, len(field.Config.Options))
	for _, option := range field.Config.Options {
		values[option.Value] = true
	}

	return values
}

func checkOption(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	str, ok := value.(string)
	if !ok {
		return violation(field, "expected an option value")
	}

	if !optionValues(field)[str] {
		return violation(field, "%q is not a configured option", str)
	}

	return nil
}

func checkOptionList(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	selected, ok := asStringList(value)
	if !ok {
		return violation(field, "expected a list of option values")
	}

	valid := optionValues(field)
	for _, entry := range selected {
		if !valid[entry] {
			return violation(field, "%q is not a configured option", entry)
		}
	}

	return nil
}

func asStringList(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		list := make([]string, 0, len(v))

		for _, entry := range v {
			str, ok := entry.(string)
			if !ok {
				return nil, false
			}

			list = append(list, str)
		}

		return list, true
	default:
		return nil, false
	}
}

func checkBool(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	if _, ok := value.(bool); !ok {
		return violation(field, "expected a boolean")
	}

	return nil
}

func checkString(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	if _, ok := value.(string); !ok {
		return violation(field, "expected text")
	}

	return nil
}

func checkStringList(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	if _, ok := asStringList(value); !ok {
		return violation(field, "expected a list of values")
	}

	return nil
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func checkEmail(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	str, ok := value.(string)
	if !ok || !emailRe.MatchString(strings.TrimSpace(str)) {
		return violation(field, "not a valid email address")
	}

	return nil
}

var phoneRe = regexp.MustCompile(`^\+?[0-9 ().-]{6,20}$`)

func checkPhone(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	str, ok := value.(string)
	if !ok || !phoneRe.MatchString(strings.TrimSpace(str)) {
		return violation(field, "not a valid phone number")
	}

	return nil
}

func checkURL(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	str, ok := value.(string)
	if !ok {
		return violation(field, "not a valid URL")
	}

	parsed, err := url.Parse(strings.TrimSpace(str))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return violation(field, "not a valid URL")
	}

	return nil
}

var colorRe = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

func checkColor(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	str, ok := value.(string)
	if !ok || !colorRe.MatchString(strings.TrimSpace(str)) {
		return violation(field, "not a valid color")
	}

	return nil
}

// fileMeta extracts name/extension/size metadata from an uploaded-file value.
func fileMeta(value any) (name, extension string, size int64, ok bool) {
	entry, isMap := value.(map[string]any)
	if !isMap {
		return "", "", 0, false
	}

	name, _ = entry["name"].(string)

	extension, _ = entry["extension"].(string)
	if extension == "" && name != "" {
		extension = strings.TrimPrefix(filepath.Ext(name), ".")
	}

	if rawSize, found := entry["size"]; found {
		num, isNum := asNumber(rawSize)
		if !isNum {
			return "", "", 0, false
		}

		size = int64(num)
	}

	return name, strings.ToLower(extension), size, name != ""
}

func checkFileEntry(field models.Field, value any) []persistence.FieldViolation {
	_, extension, size, ok := fileMeta(value)
	if !ok {
		return violation(field, "expected file metadata")
	}

	cfg := field.Config
	if len(cfg.AllowedExtensions) > 0 {
		allowed := false

		for _, ext := range cfg.AllowedExtensions {
			if strings.EqualFold(ext, extension) {
				allowed = true
				break
			}
		}

		if !allowed {
			return violation(field, "extension %q not allowed", extension)
		}
	}

	if cfg.MaxFileSize > 0 && size > cfg.MaxFileSize {
		return violation(field, "file exceeds maximum size %d", cfg.MaxFileSize)
	}

	return nil
}

func checkFile(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	return checkFileEntry(field, value)
}

func checkFileList(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	entries, ok := value.([]any)
	if !ok {
		return checkFileEntry(field, value)
	}

	if len(entries) > 1 && !field.Config.MultipleFiles {
		return violation(field, "multiple files not allowed")
	}

	for _, entry := range entries {
		if violations := checkFileEntry(field, entry); len(violations) > 0 {
			return violations
		}
	}

	return nil
}

func checkRelation(ctx context.Context, v *Validator, field models.Field, value any) []persistence.FieldViolation {
	if v.resolver == nil {
		return violation(field, "no relation resolver configured")
	}

	resolved, err := v.resolver.Resolve(ctx, field.Config.RelatedCollection, value)
	if err != nil {
		return violation(field, "relation lookup failed: %v", err)
	}

	if !resolved {
		return violation(field, "reference %v not found in %s", value, field.Config.RelatedCollection)
	}

	return nil
}

func checkLocation(_ context.Context, _ *Validator, field models.Field, value any) []persistence.FieldViolation {
	entry, ok := value.(map[string]any)
	if !ok {
		// Free-form address strings are accepted too.
		if _, isStr := value.(string); isStr {
			return nil
		}

		return violation(field, "expected coordinates or an address")
	}

	lat, latOK := asNumber(entry["lat"])
	lng, lngOK := asNumber(entry["lng"])

	if !latOK || !lngOK || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return violation(field, "invalid coordinates")
	}

	return nil
}

// applyRules runs the field's custom validation rules after the type check.
// Unique rules are delegated to the storage layer and skipped here.
func applyRules(field models.Field, value any, datos map[string]any) []persistence.FieldViolation {
	violations := make([]persistence.FieldViolation, 0)

	for _, rule := range field.Rules {
		switch rule.Type {
		case models.RuleRegex:
			str, ok := value.(string)
			if !ok {
				continue
			}

			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				violations = append(violations, persistence.FieldViolation{FieldCode: field.Code, Reason: "invalid rule pattern"})
				continue
			}

			if !re.MatchString(str) {
				violations = append(violations, persistence.FieldViolation{FieldCode: field.Code, Reason: ruleMessage(rule, "does not match pattern")})
			}
		case models.RuleRange:
			num, ok := asNumber(value)
			if !ok {
				continue
			}

			if rule.Min != nil && num < *rule.Min {
				violations = append(violations, persistence.FieldViolation{FieldCode: field.Code, Reason: ruleMessage(rule, fmt.Sprintf("below minimum %v", *rule.Min))})
			}

			if rule.Max != nil && num > *rule.Max {
				violations = append(violations, persistence.FieldViolation{FieldCode: field.Code, Reason: ruleMessage(rule, fmt.Sprintf("above maximum %v", *rule.Max))})
			}
		case models.RuleDependent:
			if rule.DependsOn != "" && IsEmpty(datos[rule.DependsOn]) {
				violations = append(violations, persistence.FieldViolation{FieldCode: field.Code, Reason: ruleMessage(rule, fmt.Sprintf("requires %s to be set", rule.DependsOn))})
			}
		case models.RuleUnique, models.RuleCustom:
			// Unique is enforced by the storage layer at write time; custom
			// rules are interpreted by external handlers.
		}
	}

	return violations
}

func ruleMessage(rule models.ValidationRule, fallback string) string {
	if rule.Message != "" {
		return rule.Message
	}

	return fallback
}
