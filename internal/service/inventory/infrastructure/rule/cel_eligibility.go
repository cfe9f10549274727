// internal/service/inventory/infrastructure/rule/cel_eligibility.go
package rule

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"qcom/internal/service/inventory/domain"
)

// DefaultEligibilityRule 是缺省的仓库资格规则：仓库启用且客户在服务半径内
const DefaultEligibilityRule = "active && distance_km <= radius_km"

// CELEligibilityAdapter 是 domain.EligibilityPolicy 的 CEL 实现。
// 资格规则由运营配置成表达式，改规则不用改代码。表达式在构造时编译，
// 编译后的 Program 可以被并发求值。
type CELEligibilityAdapter struct {
	program cel.Program
}

// NewCELEligibilityAdapter 编译表达式并创建适配器。
// expression 为空时使用 DefaultEligibilityRule。
func NewCELEligibilityAdapter(expression string) (*CELEligibilityAdapter, error) {
	if expression == "" {
		expression = DefaultEligibilityRule
	}

	env, err := cel.NewEnv(
		cel.Variable("active", cel.BoolType),
		cel.Variable("distance_km", cel.DoubleType),
		cel.Variable("radius_km", cel.DoubleType),
		cel.Variable("warehouse_id", cel.StringType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel environment")
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "compile eligibility rule %q", expression)
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.Errorf("eligibility rule %q must evaluate to bool", expression)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "build cel program")
	}
	return &CELEligibilityAdapter{program: program}, nil
}

// Eligible 实现 domain.EligibilityPolicy
func (a *CELEligibilityAdapter) Eligible(w domain.Warehouse, distanceKm float64) (bool, error) {
	out, _, err := a.program.Eval(map[string]interface{}{
		"active":       w.Active,
		"distance_km":  distanceKm,
		"radius_km":    w.RadiusKm,
		"warehouse_id": w.ID,
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate eligibility rule for warehouse %s", w.ID)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("eligibility rule returned %T, want bool", out.Value())
	}
	return result, nil
}
