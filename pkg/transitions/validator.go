// Package transitions evaluates whether a requested state change is
// permitted: the transition must exist, every guard condition must hold
// against the record's data, and comment/role requirements must be met.
// Everything here is pure and read-only.
package transitions

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence"
)

// CanTransition authorizes a move from state to targetStateID. Checks run in
// a fixed order: transition existence, guard conditions (ANDed), comment
// requirement, allowed roles. Content gates come before authorization gates,
// so a failing condition is reported even to an actor lacking the role.
func CanTransition(state *models.State, targetStateID string, datos map[string]any, comment string, actorRoles []string) error {
	transition, found := state.TransitionTo(targetStateID)
	if !found {
		return persistence.ErrInvalidTransition
	}

	for _, condition := range transition.Conditions {
		fieldCode := conditionFieldCode(state, condition)

		if !EvaluateCondition(condition, datos[fieldCode]) {
			return &persistence.TransitionConditionError{
				TargetStateID: targetStateID,
				Violation: persistence.ConditionViolation{
					FieldID:  condition.FieldID,
					Operator: condition.Operator,
					Expected: condition.Value,
				},
			}
		}
	}

	if transition.RequiresComment && strings.TrimSpace(comment) == "" {
		return persistence.ErrCommentRequired
	}

	if len(transition.AllowedRoles) > 0 {
		allowed := slices.ContainsFunc(actorRoles, func(role string) bool {
			return slices.Contains(transition.AllowedRoles, role)
		})

		if !allowed {
			return persistence.ErrPermissionDenied
		}
	}

	return nil
}

// conditionFieldCode maps a condition's field id to the datos key. Conditions
// reference fields by id; datos is keyed by field code. Ids that match no
// declared field are treated as literal codes, which covers templates that
// configured conditions directly against codes.
func conditionFieldCode(state *models.State, condition models.Condition) string {
	if field, ok := state.FieldByID(condition.FieldID); ok {
		return field.Code
	}

	return condition.FieldID
}

// EvaluateCondition applies one guard operator to a field value.
func EvaluateCondition(condition models.Condition, value any) bool {
	switch condition.Operator {
	case models.OperatorEmpty:
		return isEmpty(value)
	case models.OperatorNotEmpty:
		return !isEmpty(value)
	case models.OperatorEqual:
		return looseEqual(value, condition.Value)
	case models.OperatorNotEqual:
		return !looseEqual(value, condition.Value)
	case models.OperatorGreater:
		left, leftOK := toNumber(value)
		right, rightOK := toNumber(condition.Value)

		return leftOK && rightOK && left > right
	case models.OperatorLess:
		left, leftOK := toNumber(value)
		right, rightOK := toNumber(condition.Value)

		return leftOK && rightOK && left < right
	case models.OperatorContains:
		return contains(value, condition.Value)
	case models.OperatorNotContains:
		return !contains(value, condition.Value)
	default:
		return false
	}
}

func isEmpty(value any) bool {
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

// looseEqual compares across the value shapes JSON decoding produces:
// numbers compare numerically, everything else through its string form.
func looseEqual(left, right any) bool {
	if leftNum, ok := toNumber(left); ok {
		if rightNum, ok := toNumber(right); ok {
			return leftNum == rightNum
		}
	}

	return stringify(left) == stringify(right)
}

func toNumber(value any) (float64, bool) {
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

func stringify(value any) string {
	if value == nil {
		return ""
	}

	if str, ok := value.(string); ok {
		return str
	}

	return fmt.Sprintf("%v", value)
}

// contains reports substring containment for strings and membership for lists.
func contains(value, needle any) bool {
	target := stringify(needle)

	switch v := value.(type) {
	case string:
		return strings.Contains(v, target)
	case []any:
		for _, entry := range v {
			if stringify(entry) == target {
				return true
			}
		}

		return false
	case []string:
		return slices.Contains(v, target)
	default:
		return false
	}
}
