package rules

import "github.com/PL7092/MyMoney-sub001/internal/model"

func dirPtr(d model.Direction) *model.Direction { return &d }

// SystemRules returns the immutable global rules installed by migration.
// System rules sit at priority 50 and above so user-created rules (priority
// 10) always evaluate first.
func SystemRules() []model.Rule {
	return []model.Rule{
		{
			Name:       "Supermercados",
			Kind:       model.RuleClassification,
			Keywords:   []string{"supermercado", "continente", "pingo", "lidl", "aldi", "auchan", "intermarche", "mercadona", "minipreco"},
			Category:   "Alimentação",
			Confidence: 0.92,
			Priority:   50,
			IsActive:   true,
			IsSystem:   true,
		},
		{
			Name:            "Salário",
			Kind:            model.RuleClassification,
			Keywords:        []string{"salario", "vencimento", "ordenado", "payroll"},
			Category:        "Salário",
			ActionDirection: dirPtr(model.DirectionIncome),
			Confidence:      0.95,
			Priority:        50,
			IsActive:        true,
			IsSystem:        true,
		},
		{
			Name:       "Combustível",
			Kind:       model.RuleClassification,
			Keywords:   []string{"galp", "bp", "repsol", "cepsa", "combustivel", "gasolina", "gasoleo"},
			Category:   "Transportes",
			Confidence: 0.90,
			Priority:   55,
			IsActive:   true,
			IsSystem:   true,
		},
		{
			Name:       "Restauração",
			Kind:       model.RuleClassification,
			Keywords:   []string{"restaurante", "cafe", "pastelaria", "uber", "eats", "glovo", "mcdonalds"},
			Category:   "Restauração",
			Confidence: 0.85,
			Priority:   60,
			IsActive:   true,
			IsSystem:   true,
		},
		{
			Name:       "Utilidades",
			Kind:       model.RuleClassification,
			Keywords:   []string{"edp", "endesa", "epal", "meo", "nos", "vodafone", "agua", "eletricidade"},
			Category:   "Casa",
			Confidence: 0.88,
			Priority:   60,
			IsActive:   true,
			IsSystem:   true,
		},
		{
			Name:            "Transferências",
			Kind:            model.RuleClassification,
			Keywords:        []string{"transferencia", "trf", "transfer", "mbway"},
			Category:        "Transferências",
			ActionDirection: dirPtr(model.DirectionTransfer),
			Confidence:      0.80,
			Priority:        70,
			IsActive:        true,
			IsSystem:        true,
		},
		{
			Name:                "Deteção de duplicados",
			Kind:                model.RuleDuplicate,
			WindowDays:          intPtr(3),
			SimilarityThreshold: floatPtr(0.5),
			Priority:            50,
			IsActive:            true,
			IsSystem:            true,
		},
		{
			Name:      "Validação de montantes",
			Kind:      model.RuleAmountValidation,
			AmountMin: floatPtr(0),
			AmountMax: floatPtr(1_000_000),
			Priority:  50,
			IsActive:  true,
			IsSystem:  true,
		},
	}
}

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }
