package p4p

import "github.com/shopspring/decimal"

// IncidentBonus is the flat amount paid per customer review or completed
// estimate.
func IncidentBonus() Money { return Money{Value: decimal.NewFromInt(25)} }

// ApplyOutstandingIncidentAdjustments returns the amount to subtract from an
// employee's performance pay.
//
// Every unresolved incident of the employee counts, whatever job it was
// recorded against: deductions keep applying to later P4P until resolved.
// Damage and quality incidents add their cost; reviews and completed
// estimates subtract IncidentBonus each, so the result can be negative.
func ApplyOutstandingIncidentAdjustments(employeeID EmployeeID, incidents []Incident) Money {
	adjustment := ZeroMoney()
	for _, inc := range incidents {
		if inc.EmployeeID != employeeID || inc.Resolved {
			continue
		}
		switch {
		case inc.Type.IsDeduction():
			adjustment = adjustment.Add(inc.Cost)
		case inc.Type.IsBonus():
			adjustment = adjustment.Sub(IncidentBonus())
		}
	}
	return adjustment
}
